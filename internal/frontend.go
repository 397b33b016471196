package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cairnway/cairnway/internal/core"
	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/protocol"
)

// frontend implements the concurrent client connection logic.
//
// Data is read from any connected clients and passed to the backend
// instance, abstracting the lower level connection details away from the
// game logic. A fixed-interval liveness sweep evicts any session whose
// disconnect flag has been raised, whether by a protocol violation, a write
// failure or its read loop hitting a dead socket.
type frontend struct {
	Address  string
	Backend  Backend
	Config   *core.Config
	Logger   *logrus.Logger
	Registry *client.Registry

	boundAddr net.Addr
}

// Start initializes the backend and opens the listening socket. The blocking
// accept loop and the liveness sweep are spun off in their own goroutines
// and added to the WaitGroup. Context cancellation stops the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := f.Backend.Init(ctx); err != nil {
		return fmt.Errorf("error initializing %s server: %w", f.Backend.Identifier(), err)
	}

	socket, err := net.Listen("tcp", f.Address)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", f.Address, err)
	}
	f.boundAddr = socket.Addr()

	wg.Add(2)
	go f.startBlockingLoop(ctx, socket, wg)
	go f.startLivenessSweep(ctx, wg)

	return nil
}

// startBlockingLoop accepts new connections and spins off read-loop
// goroutines for the backend to handle them.
func (f *frontend) startBlockingLoop(ctx context.Context, socket net.Listener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Infof("[%s] waiting for connections on %v", f.Backend.Identifier(), f.Address)

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	for {
		connection, err := socket.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			f.Logger.Warnf("failed to accept connection: %s", err.Error())
			continue
		}

		go f.acceptClient(ctx, connection)
	}

	f.Logger.Infof("[%s] no longer accepting connections", f.Backend.Identifier())
}

// acceptClient registers a session for the connection and moves into its
// packet processing loop, unless the server is already at capacity.
func (f *frontend) acceptClient(ctx context.Context, connection net.Conn) {
	c := client.NewClient(connection)
	f.Backend.SetUpClient(c)

	if !f.Registry.Add(c) {
		f.Logger.Warnf("[%s] server full, rejecting connection from %s", f.Backend.Identifier(), c.IPAddr())
		_ = c.Send(protocol.Make(protocol.KindLoginResponse, &protocol.LoginDetails{
			Response: protocol.ResponseServerFull,
		}))
		_ = connection.Close()
		return
	}

	f.Logger.Infof("[%s] accepted connection from %s", f.Backend.Identifier(), c.IPAddr())
	f.processPackets(ctx, c)
}

// processPackets starts a blocking loop dedicated to reading frames sent
// from a game client and only returns once the connection has closed or the
// session has been flagged for disconnect.
func (f *frontend) processPackets(ctx context.Context, c *client.Client) {
	defer f.recoverFromHandlerPanic(c)

	for !c.Disconnecting() {
		packet, err := c.ReadPacket()

		if err != nil {
			if isConnectionError(err) {
				// Dead socket; let the sweep clean up.
				c.FlagDisconnect()
				return
			}
			// Decode failure: a protocol violation, not a transport error.
			f.Logger.Errorf("[%s] illegal packet from %s (%s): %v",
				f.Backend.Identifier(), c.Username(), c.IPAddr(), err)
			_ = c.Send(protocol.New(protocol.KindIllegalAction))
			c.FlagDisconnect()
			return
		}

		select {
		case <-ctx.Done():
			c.FlagDisconnect()
			return
		default:
		}

		if err := f.Backend.Handle(ctx, c, packet); err != nil {
			f.Logger.Errorf("[%s] illegal action from %s (%s): %v",
				f.Backend.Identifier(), c.Username(), c.IPAddr(), err)
			_ = c.Send(protocol.New(protocol.KindIllegalAction))
			c.FlagDisconnect()
			return
		}
	}
}

// recoverFromHandlerPanic is the failsafe that catches any panics out of
// packet handling and converts them into a disconnect, so one misbehaving
// client cannot crash the process.
func (f *frontend) recoverFromHandlerPanic(c *client.Client) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.IPAddr(), err, debug.Stack())
		_ = c.Send(protocol.New(protocol.KindIllegalAction))
		c.FlagDisconnect()
	}
}

// startLivenessSweep periodically evicts sessions flagged for disconnect.
// Eviction is centralized here so that every exit path (protocol violation,
// write failure, dead socket, operator kick) ends in exactly one place.
func (f *frontend) startLivenessSweep(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(f.Config.Game.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.sweepOnce(false)
		}
	}
}

// Drain keeps sweeping after shutdown has begun, giving clients time to
// save and disconnect on their own. Once the timeout passes, any session
// still connected is evicted.
func (f *frontend) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for f.Registry.Len() > 0 && time.Now().Before(deadline) {
		f.sweepOnce(false)
		time.Sleep(f.Config.Game.SweepInterval)
	}
	f.sweepOnce(true)
}

func (f *frontend) sweepOnce(evictAll bool) {
	for _, c := range f.Registry.All() {
		if evictAll || c.Disconnecting() {
			f.evict(c)
		}
	}
}

func (f *frontend) evict(c *client.Client) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		f.Logger.Warnf("failed to close client connection: %s", err)
	}

	peer := f.Registry.Remove(c)
	f.Backend.OnDisconnect(c, peer)

	f.Logger.Infof("[%s] disconnected client %s (%s)", f.Backend.Identifier(), c.Username(), c.IPAddr())
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
