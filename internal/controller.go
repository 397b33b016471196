package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cairnway/cairnway/internal/admin"
	"github.com/cairnway/cairnway/internal/core"
	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/game"
)

// Controller is the main entrypoint for the server. It's responsible for
// initializing the shared resources (database, logging, session registry),
// wiring up the world server, and launching everything.
type Controller struct {
	Config *core.Config

	logger   *logrus.Logger
	registry *client.Registry
	world    *game.Server
	front    *frontend
	wg       sync.WaitGroup
}

func (c *Controller) Start(ctx context.Context) error {
	var err error
	// Set up the logger, which is shared by all components.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	db, err := data.Initialize(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer func() {
		if err := data.Shutdown(db); err != nil {
			c.logger.Warnf("error closing database: %v", err)
		}
	}()

	c.registry = client.NewRegistry(c.Config.MaxPlayers)
	c.world = game.NewServer("WORLD", c.Config, c.logger, db, c.registry)

	c.front = &frontend{
		Address:  c.Config.ListenAddress(),
		Backend:  c.world,
		Config:   c.Config,
		Logger:   c.logger,
		Registry: c.registry,
	}
	if err := c.front.Start(ctx, &c.wg); err != nil {
		return err
	}

	if c.Config.AdminAPI.Enabled {
		adminServer := &admin.Server{
			Config: c.Config,
			Logger: c.logger,
			Game:   c.world,
		}
		if err := adminServer.Start(ctx, &c.wg); err != nil {
			return fmt.Errorf("error starting admin API: %w", err)
		}
	}

	c.logger.Infof("server launched, listening for players at %s", c.Config.ListenAddress())

	<-ctx.Done()
	c.drain()
	c.wg.Wait()
	return ctx.Err()
}

// drain implements the cooperative shutdown contract: stop accepting (done
// by the frontend on context cancellation), tell every live session to
// force-save and disconnect, then wait for the registry to empty.
func (c *Controller) drain() {
	c.logger.Infof("shutting down, waiting for %d clients to save", c.registry.Len())
	c.world.ForceSaveAll()
	c.front.Drain(c.Config.Game.ShutdownTimeout)
}
