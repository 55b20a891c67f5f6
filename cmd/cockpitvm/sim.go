package main

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"gopkg.in/urfave/cli.v1"
)

var simCommand = cli.Command{
	Name:  "sim",
	Usage: "Manage a containerized integration harness running this simulator",
	Subcommands: []cli.Command{
		simUpCommand,
		simDownCommand,
	},
}

var simUpCommand = cli.Command{
	Name:  "up",
	Usage: "Start a simulator container for integration testing",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "image", Value: "cockpitvm/sim:latest"},
		cli.StringFlag{Name: "name", Value: "cockpitvm-sim"},
	},
	Action: simUp,
}

var simDownCommand = cli.Command{
	Name:  "down",
	Usage: "Stop and remove the simulator container",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "name", Value: "cockpitvm-sim"},
	},
	Action: simDown,
}

// simUp starts exactly one simulator container, a thin wrapper over
// docker/docker's client — the teacher's tooling reaches for the same
// client package when it needs a disposable sandbox rather than shelling
// out to the docker CLI.
func simUp(ctx *cli.Context) error {
	cli_, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli_.Close()

	background := context.Background()
	resp, err := cli_.ContainerCreate(background,
		&container.Config{Image: ctx.String("image")},
		&container.HostConfig{AutoRemove: false},
		nil, nil, ctx.String("name"),
	)
	if err != nil {
		return err
	}
	if err := cli_.ContainerStart(background, resp.ID, types.ContainerStartOptions{}); err != nil {
		return err
	}
	fmt.Printf("started simulator container %s (%s)\n", ctx.String("name"), resp.ID[:12])
	return nil
}

func simDown(ctx *cli.Context) error {
	cli_, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli_.Close()

	background := context.Background()
	name := ctx.String("name")
	if err := cli_.ContainerStop(background, name, container.StopOptions{}); err != nil {
		return err
	}
	if err := cli_.ContainerRemove(background, name, types.ContainerRemoveOptions{}); err != nil {
		return err
	}
	fmt.Printf("stopped and removed simulator container %s\n", name)
	return nil
}
