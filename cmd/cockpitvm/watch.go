package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rjeczalik/notify"
	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/bootimage"
	"github.com/cockpitvm/hypervisor/internal/config"
	"github.com/cockpitvm/hypervisor/internal/flash"
	"github.com/cockpitvm/hypervisor/internal/log"
	"github.com/cockpitvm/hypervisor/internal/platform"
)

var watchCommand = cli.Command{
	Name:      "watch",
	Usage:     "Watch a build directory and auto-flash newly written .img files",
	ArgsUsage: "<dir>",
	Action:    runWatch,
}

func runWatch(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("usage: cockpitvm watch <dir>", 1)
	}
	dir := ctx.Args().Get(0)

	events := make(chan notify.EventInfo, 8)
	if err := notify.Watch(filepath.Join(dir, "..."), events, notify.Write, notify.Create); err != nil {
		return err
	}
	defer notify.Stop(events)

	cfg := config.Default()
	sim := platform.NewSimulator(cfg.Flash.PageSize)
	eng := flash.NewEngine(sim, sim)

	log.Info("watching for guest images", "dir", dir)
	for ev := range events {
		path := ev.Path()
		if !strings.HasSuffix(path, ".img") {
			continue
		}
		if err := flashOne(eng, sim, cfg.Flash.BankAAddress, path); err != nil {
			log.Error("auto-flash failed", "path", path, "err", err)
			continue
		}
		log.Info("auto-flashed guest image", "path", path)
	}
	return nil
}

func flashOne(eng *flash.Engine, r flash.Reader, addr uint32, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := bootimage.Parse(raw); err != nil {
		return fmt.Errorf("invalid guest image: %w", err)
	}
	eng.Init(addr)
	if err := eng.Stage(raw); err != nil {
		return err
	}
	if err := eng.Flush(); err != nil {
		return err
	}
	return eng.Verify(r, addr, raw)
}
