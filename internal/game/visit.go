package game

import (
	"fmt"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// VisitManager pairs two live sessions so one can walk around in the
// other's map. Pairing state lives in the registry so eviction can tear it
// down under the same lock that removes the session.
type VisitManager struct {
	*deps
}

func NewVisitManager(d *deps) *VisitManager {
	return &VisitManager{deps: d}
}

func (m *VisitManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var details protocol.VisitDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed visit payload: %w", err)
	}

	switch details.Step {
	case protocol.VisitRequest:
		return m.handleRequest(c, details)
	case protocol.VisitAccept:
		return m.handleAccept(c, details)
	case protocol.VisitReject:
		return m.handleReject(c, details)
	case protocol.VisitAction:
		m.relayToPeer(c, details)
		return nil
	case protocol.VisitStop:
		m.handleStop(c)
		return nil
	default:
		return fmt.Errorf("unexpected visit step %d from %s", details.Step, c.Username())
	}
}

func (m *VisitManager) handleRequest(c *client.Client, details protocol.VisitDetails) error {
	target, err := data.FindSettlementByTile(m.db, details.TargetTile)
	if err != nil {
		return fmt.Errorf("looking up tile %s: %w", details.TargetTile, err)
	}
	if target == nil {
		return fmt.Errorf("visit request against unknown tile %s", details.TargetTile)
	}

	host := m.registry.FindByUsername(target.Owner)
	if host == nil || !host.LoggedIn() || host.InSafeZone() || m.registry.PeerOf(host) != nil {
		_ = c.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitUnavailable}))
		return nil
	}

	details.Visitor = c.Username()
	_ = host.Send(protocol.Make(protocol.KindVisit, &details))
	return nil
}

func (m *VisitManager) handleAccept(c *client.Client, details protocol.VisitDetails) error {
	visitor := m.registry.FindByUsername(details.Visitor)
	if visitor == nil || !visitor.LoggedIn() {
		_ = c.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitUnavailable}))
		return nil
	}
	if !m.registry.Pair(c, visitor) {
		// Either side got into another visit since the request.
		_ = c.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitUnavailable}))
		return nil
	}

	m.logger.Infof("[WORLD] %s is visiting %s", visitor.Username(), c.Username())
	_ = visitor.Send(protocol.Make(protocol.KindVisit, &details))
	return nil
}

func (m *VisitManager) handleReject(c *client.Client, details protocol.VisitDetails) error {
	visitor := m.registry.FindByUsername(details.Visitor)
	if visitor != nil {
		_ = visitor.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitReject}))
	}
	return nil
}

// relayToPeer forwards an opaque action payload to the visit partner. A
// stray action with no active visit gets a stop so the sender unwinds.
func (m *VisitManager) relayToPeer(c *client.Client, details protocol.VisitDetails) {
	peer := m.registry.PeerOf(c)
	if peer == nil {
		_ = c.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitStop}))
		return
	}
	_ = peer.Send(protocol.Make(protocol.KindVisit, &details))
}

func (m *VisitManager) handleStop(c *client.Client) {
	if peer := m.registry.Unpair(c); peer != nil {
		m.logger.Infof("[WORLD] visit between %s and %s ended", c.Username(), peer.Username())
		_ = peer.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitStop}))
	}
}
