// The server command is the main entrypoint for running cairnway. It loads
// the configuration, wires up the shared resources, and runs the world
// server until it receives a shutdown signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cairnway/cairnway/internal"
	"github.com/cairnway/cairnway/internal/core"
)

var configFlag = flag.String("config", "./", "Path to the directory containing the server config file")

func main() {
	flag.Parse()

	config := core.LoadConfig(*configFlag)
	fmt.Println("using configuration file:", *configFlag)

	// Change to the same directory as the config file so that any relative
	// paths in the config file will resolve.
	if err := os.Chdir(filepath.Dir(*configFlag)); err != nil {
		fmt.Println("error changing to config directory:", err)
		os.Exit(1)
	}

	// Bind the Controller to one top-level server context so that we can
	// shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())

	// SIGINT and SIGTERM trigger a graceful drain; a second signal during
	// the drain kills the process.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, c)

	controller := &internal.Controller{
		Config: config,
	}
	if err := controller.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Println(err)
		}
	}
	fmt.Println("shut down")
}

func exitHandler(cancelFn func(), c chan os.Signal) {
	<-c
	fmt.Println("waiting to shut down gracefully...")
	cancelFn()

	<-c
	fmt.Println("hard exiting (killed)")
	os.Exit(1)
}
