package internal

import (
	"context"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/protocol"
)

// Backend is the interface between the connection frontend and the game
// logic. The frontend owns sockets, framing and liveness; the Backend owns
// everything that happens to a decoded packet.
type Backend interface {
	// Identifier returns a uniquely identifying string, mostly for logging.
	Identifier() string

	// Init is called before the frontend starts accepting connections, as a
	// hook for the Backend to perform any necessary initialization.
	Init(ctx context.Context) error

	// SetUpClient performs any per-session initialization needed before the
	// session's first packet is handled.
	SetUpClient(c *client.Client)

	// Handle is the main entry point for processing client packets. A
	// returned error is treated as a protocol violation: the frontend sends
	// the illegal-action shortcut and flags the session for disconnect.
	Handle(ctx context.Context, c *client.Client, packet protocol.Packet) error

	// OnDisconnect is invoked by the liveness sweep after a session has been
	// evicted from the registry. visitPeer is the session's former visit
	// partner, if the eviction tore down a pairing.
	OnDisconnect(c *client.Client, visitPeer *client.Client)
}
