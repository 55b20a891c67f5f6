package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/bootimage"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/vm"
)

var disasmCommand = cli.Command{
	Name:      "disasm",
	Usage:     "Disassemble a guest bytecode image",
	ArgsUsage: "<image.img>",
	Action:    runDisasm,
}

func runDisasm(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("usage: cockpitvm disasm <image.img>", 1)
	}
	raw, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	img, err := bootimage.Parse(raw)
	if err != nil {
		return err
	}

	orch := vm.NewOrchestrator(platform.NewSimulator(2048))
	if err := orch.LoadProgram(img.Body, img.Strings); err != nil {
		return err
	}
	fmt.Print(orch.Disassemble())
	return nil
}
