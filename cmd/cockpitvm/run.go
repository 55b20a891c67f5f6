package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/bootimage"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/vm"
)

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "Load and execute a guest bytecode image in the simulator",
	ArgsUsage: "<image.img>",
	Flags: []cli.Flag{
		cli.UintFlag{Name: "page-size", Value: 2048},
	},
	Action: runGuest,
}

func runGuest(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("usage: cockpitvm run <image.img>", 1)
	}
	raw, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	img, err := bootimage.Parse(raw)
	if err != nil {
		return err
	}

	sim := platform.NewSimulator(uint32(ctx.Uint("page-size")))
	orch := vm.NewOrchestrator(sim)
	if err := orch.LoadProgram(img.Body, img.Strings); err != nil {
		return err
	}
	if err := orch.ExecuteProgram(); err != nil {
		fmt.Fprintf(os.Stderr, "execution faulted: %v\n", err)
	}

	m := orch.GetMetrics()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"instructions", fmt.Sprintf("%d", m.InstructionCount)})
	table.Append([]string{"pc", fmt.Sprintf("%d", m.PC)})
	table.Append([]string{"halted", fmt.Sprintf("%v", m.Halted)})
	table.Append([]string{"array pool used", fmt.Sprintf("%d", m.ArrayPoolUsed)})
	table.Render()
	return nil
}
