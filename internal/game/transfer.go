package game

import (
	"fmt"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// TransferManager relays trade negotiations between the owners of two
// settlement tiles. The server holds no negotiation state: each step is
// re-resolved against the settlement table and forwarded, and a step whose
// counterpart cannot receive it comes back to the caller as Recover so the
// cargo is never lost.
type TransferManager struct {
	*deps
}

func NewTransferManager(d *deps) *TransferManager {
	return &TransferManager{deps: d}
}

func (m *TransferManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var manifest protocol.TransferManifest
	if err := packet.Payload(&manifest); err != nil {
		return fmt.Errorf("malformed transfer payload: %w", err)
	}

	switch manifest.Step {
	case protocol.TransferRequest, protocol.TransferReAccept, protocol.TransferReReject:
		// Steps that travel from the initiating side to the receiving side.
		return m.relay(c, manifest, manifest.FromTile, manifest.ToTile)
	case protocol.TransferAccept, protocol.TransferReject, protocol.TransferReRequest:
		// Replies travel back to the initiating side.
		return m.relay(c, manifest, manifest.ToTile, manifest.FromTile)
	default:
		return fmt.Errorf("unexpected transfer step %d from %s", manifest.Step, c.Username())
	}
}

// relay validates that the caller owns the step's origin tile, then forwards
// the manifest to the owner of the destination tile.
func (m *TransferManager) relay(c *client.Client, manifest protocol.TransferManifest, originTile, destTile string) error {
	origin, err := data.FindSettlementByTile(m.db, originTile)
	if err != nil {
		return fmt.Errorf("looking up tile %s: %w", originTile, err)
	}
	if origin == nil || origin.Owner != c.Username() {
		return fmt.Errorf("transfer step from %s against tile %s it does not own", c.Username(), originTile)
	}

	dest, err := data.FindSettlementByTile(m.db, destTile)
	if err != nil {
		return fmt.Errorf("looking up tile %s: %w", destTile, err)
	}

	var peer *client.Client
	if dest != nil {
		peer = m.registry.FindByUsername(dest.Owner)
	}
	if peer == nil || !peer.LoggedIn() || peer.InSafeZone() {
		m.bounce(c, manifest)
		return nil
	}

	m.logger.Debugf("[WORLD] relaying transfer step %d between tiles %s and %s", manifest.Step, manifest.FromTile, manifest.ToTile)
	_ = peer.Send(protocol.Make(protocol.KindTransfer, &manifest))

	// Gifts and drop pods need no decision from the recipient, so the
	// sender gets an immediate acceptance and can release the cargo.
	if manifest.Step == protocol.TransferRequest &&
		(manifest.Kind == protocol.TransferGift || manifest.Kind == protocol.TransferPod) {
		ack := manifest
		ack.Step = protocol.TransferAccept
		_ = c.Send(protocol.Make(protocol.KindTransfer, &ack))
	}
	return nil
}

// bounce answers a step whose destination cannot receive it. The cargo
// comes back as Recover, except for drop pods, which are fire-and-forget
// and only warrant an unavailability notice.
func (m *TransferManager) bounce(c *client.Client, manifest protocol.TransferManifest) {
	if manifest.Kind == protocol.TransferPod {
		m.sendUnavailable(c)
		return
	}
	manifest.Step = protocol.TransferRecover
	_ = c.Send(protocol.Make(protocol.KindTransfer, &manifest))
}
