package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/bootimage"
	"github.com/cockpitvm/hypervisor/internal/config"
	"github.com/cockpitvm/hypervisor/internal/flash"
	"github.com/cockpitvm/hypervisor/internal/platform"
)

var flashCommand = cli.Command{
	Name:      "flash",
	Usage:     "Program a guest bytecode image into the simulated flash bank",
	ArgsUsage: "<image.img>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file"},
	},
	Action: runFlash,
}

func runFlash(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("usage: cockpitvm flash <image.img>", 1)
	}
	raw, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	img, err := bootimage.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid guest image: %w", err)
	}

	cfg := config.Default()
	if file := ctx.String("config"); file != "" {
		cfg, err = config.Load(file)
		if err != nil {
			return err
		}
	}

	sim := platform.NewSimulator(cfg.Flash.PageSize)
	eng := flash.NewEngine(sim, sim)
	eng.Init(cfg.Flash.BankAAddress)
	if err := eng.Stage(raw); err != nil {
		return err
	}
	if err := eng.Flush(); err != nil {
		return err
	}
	if err := eng.Verify(sim, cfg.Flash.BankAAddress, raw); err != nil {
		return err
	}

	fmt.Printf("programmed %d bytes at 0x%08x (%d instructions, %d strings)\n",
		eng.BytesProgrammed(), cfg.Flash.BankAAddress, img.Header.InstructionCount, img.Header.StringCount)
	return nil
}
