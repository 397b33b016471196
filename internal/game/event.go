package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// EventManager delivers hostile events between players. A delivered event
// puts the receiver in its safe zone: no further events, transfers or visit
// requests reach it until it acknowledges with a break packet or the
// configured timeout clears the zone.
type EventManager struct {
	*deps

	mu     sync.Mutex
	timers map[*client.Client]*time.Timer
}

func NewEventManager(d *deps) *EventManager {
	return &EventManager{deps: d, timers: make(map[*client.Client]*time.Timer)}
}

func (m *EventManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var details protocol.EventDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed event payload: %w", err)
	}
	if details.Step != protocol.EventSend {
		return fmt.Errorf("unexpected event step %d from %s", details.Step, c.Username())
	}

	target, err := data.FindSettlementByTile(m.db, details.ToTile)
	if err != nil {
		return fmt.Errorf("looking up tile %s: %w", details.ToTile, err)
	}
	if target == nil {
		return fmt.Errorf("event against unknown tile %s", details.ToTile)
	}

	peer := m.registry.FindByUsername(target.Owner)
	if peer == nil || !peer.LoggedIn() {
		m.recover(c, details)
		return nil
	}
	if !peer.EnterSafeZone() {
		// Already digesting an event; the payload goes back to the sender.
		m.recover(c, details)
		return nil
	}

	m.armTimeout(peer)
	m.logger.Infof("[WORLD] %s sent an event to tile %s (%s)", c.Username(), details.ToTile, target.Owner)
	details.Step = protocol.EventReceive
	_ = peer.Send(protocol.Make(protocol.KindEvent, &details))
	// Lightweight acknowledgement so the sender can close out its side.
	m.sendBreak(c)
	return nil
}

// HandleBreak is the receiver acknowledging it finished processing an
// event, which reopens it to traffic. A stray break is harmless.
func (m *EventManager) HandleBreak(c *client.Client) {
	if c.LeaveSafeZone() {
		m.disarmTimeout(c)
		m.logger.Debugf("[WORLD] %s left its safe zone", c.Username())
	}
}

func (m *EventManager) forgetClient(c *client.Client) {
	m.disarmTimeout(c)
}

func (m *EventManager) recover(c *client.Client, details protocol.EventDetails) {
	details.Step = protocol.EventRecover
	_ = c.Send(protocol.Make(protocol.KindEvent, &details))
}

// armTimeout clears the safe zone after the configured interval in case the
// break acknowledgement never arrives.
func (m *EventManager) armTimeout(c *client.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[c]; ok {
		timer.Stop()
	}
	m.timers[c] = time.AfterFunc(m.config.Game.SafeZoneTimeout, func() {
		if c.LeaveSafeZone() {
			m.logger.Warnf("[WORLD] safe zone for %s expired without a break", c.Username())
		}
		m.mu.Lock()
		delete(m.timers, c)
		m.mu.Unlock()
	})
}

func (m *EventManager) disarmTimeout(c *client.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[c]; ok {
		timer.Stop()
		delete(m.timers, c)
	}
}
