package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/vm"
)

var consoleCommand = cli.Command{
	Name:  "console",
	Usage: "Interactive JavaScript console for scripting the VM orchestrator",
	Flags: []cli.Flag{
		cli.UintFlag{Name: "page-size", Value: 2048},
	},
	Action: runConsole,
}

const historyFile = ".cockpitvm_console_history"

// runConsole starts a readline-driven REPL, binding a fresh Orchestrator
// into the JS runtime as the global "vm" object — the same "bind a backend
// value into a scripting runtime's global object" shape the teacher's own
// console (built on dop251/goja elsewhere in this ecosystem) uses to expose
// JSON-RPC methods to script authors, here exposing the orchestrator
// directly instead of an RPC client.
func runConsole(ctx *cli.Context) error {
	sim := platform.NewSimulator(uint32(ctx.Uint("page-size")))
	orch := vm.NewOrchestrator(sim)

	rt := goja.New()
	if err := rt.Set("vm", orch); err != nil {
		return err
	}
	if err := rt.Set("loadProgram", func(code []byte, strings []string) error {
		return orch.LoadProgram(code, strings)
	}); err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	loadHistory(line)
	defer saveHistory(line)

	fmt.Println("cockpitvm console — type .exit to quit")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == ".exit" {
			return nil
		}

		v, err := rt.RunString(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if v != nil && !goja.IsUndefined(v) {
			fmt.Println(v.String())
		}
	}
}

func loadHistory(line *liner.State) {
	if f, err := os.Open(historyFile); err == nil {
		defer f.Close()
		line.ReadHistory(f)
	}
}

func saveHistory(line *liner.State) {
	if f, err := os.Create(historyFile); err == nil {
		defer f.Close()
		line.WriteHistory(f)
	}
}
