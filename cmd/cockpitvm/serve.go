package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"golang.org/x/time/rate"
	"gopkg.in/urfave/cli.v1"

	"github.com/cockpitvm/hypervisor/internal/config"
	"github.com/cockpitvm/hypervisor/internal/debugserver"
	"github.com/cockpitvm/hypervisor/internal/flash"
	"github.com/cockpitvm/hypervisor/internal/log"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/protocol"
	"github.com/cockpitvm/hypervisor/internal/queue"
	"github.com/cockpitvm/hypervisor/internal/vm"
)

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "Run the bootloader protocol engine against the simulated UART, with an optional debug server",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file"},
		cli.BoolFlag{Name: "debug-server", Usage: "serve the status/stream debug endpoints"},
	},
	Action: runServe,
}

func runServe(ctx *cli.Context) error {
	cfg := config.Default()
	if file := ctx.String("config"); file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	sim := platform.NewSimulator(cfg.Flash.PageSize)
	transport, err := platform.NewSimTransport(sim, 115200)
	if err != nil {
		return err
	}

	eng := flash.NewEngine(sim, sim)
	handler := protocol.NewHandler(eng, sim, cfg.Flash.PageSize, cfg.Flash.BankAAddress)
	q := queue.NewQueue(queue.DefaultCapacity)
	engine := protocol.NewEngine(transport, q, handler, sim, rate.Limit(1000))
	engine.SetEmergencyShutdownHook(func() { log.Info("emergency shutdown: GPIO parked in safe state") })

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		cancel()
	}()

	if ctx.Bool("debug-server") {
		orch := vm.NewOrchestrator(sim)
		srv := debugserver.New(orch)
		addr := cfg.DebugServer.Addr
		if addr == "" {
			addr = ":8090"
		}
		go func() {
			log.Info("debug server listening", "addr", addr)
			if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
				log.Error("debug server stopped", "err", err)
			}
		}()
	}

	log.Info("protocol engine running")
	err = engine.Run(runCtx)
	if err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}
