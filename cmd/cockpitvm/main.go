// Command cockpitvm is the host simulator and lab-bench CLI for CockpitVM,
// grounded on the teacher's cmd/devp2p and cmd/gprobe command structure:
// gopkg.in/urfave/cli.v1 with one cli.Command per subcommand, and
// package-level command variables assembled into app.Commands.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/log"
)

var app = cli.NewApp()

func init() {
	app.Name = "cockpitvm"
	app.Usage = "CockpitVM host simulator and lab-bench tooling"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		flashCommand,
		runCommand,
		disasmCommand,
		watchCommand,
		consoleCommand,
		simCommand,
		serveCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Crit("cockpitvm exited with error", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
