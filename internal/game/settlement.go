package game

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// SettlementManager owns the settlement records and the broadcasts that keep
// every live session's world view consistent.
type SettlementManager struct {
	*deps
}

func NewSettlementManager(d *deps) *SettlementManager {
	return &SettlementManager{deps: d}
}

func (m *SettlementManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var details protocol.SettlementDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed settlement payload: %w", err)
	}

	switch details.Step {
	case protocol.SettlementAdd:
		return m.handleAdd(c, details)
	case protocol.SettlementRemove:
		return m.handleRemove(c, details)
	default:
		return fmt.Errorf("unknown settlement step %d", details.Step)
	}
}

// handleAdd claims a tile. The tile id space is shared with sites, so both
// tables are checked under the tile lock before the record is created. A
// claim on an occupied tile is a protocol violation, not a recoverable
// conflict: the client mod checks tile availability before asking.
func (m *SettlementManager) handleAdd(c *client.Client, details protocol.SettlementDetails) error {
	if details.Tile == "" {
		return fmt.Errorf("settlement claim without a tile")
	}

	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	if taken, err := tileOccupied(m.db, details.Tile); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("settlement claim on occupied tile %s by %s", details.Tile, c.Username())
	}

	settlement := &data.Settlement{Tile: details.Tile, Owner: c.Username()}
	if err := data.CreateSettlement(m.db, settlement); err != nil {
		return fmt.Errorf("creating settlement: %w", err)
	}

	m.logger.Infof("[WORLD] %s settled tile %s", c.Username(), details.Tile)
	m.broadcastChange(c, protocol.SettlementAdd, settlement)
	return nil
}

func (m *SettlementManager) handleRemove(c *client.Client, details protocol.SettlementDetails) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	settlement, err := data.FindSettlementByTile(m.db, details.Tile)
	if err != nil {
		return fmt.Errorf("looking up settlement %s: %w", details.Tile, err)
	}
	if settlement == nil {
		return fmt.Errorf("settlement removal for unknown tile %s", details.Tile)
	}
	if settlement.Owner != c.Username() && !c.IsAdmin() {
		return fmt.Errorf("%s tried to remove settlement %s owned by %s", c.Username(), details.Tile, settlement.Owner)
	}

	if err := data.DeleteSettlement(m.db, settlement); err != nil {
		return fmt.Errorf("deleting settlement: %w", err)
	}

	m.logger.Infof("[WORLD] %s abandoned tile %s", settlement.Owner, settlement.Tile)
	m.broadcastChange(c, protocol.SettlementRemove, settlement)
	return nil
}

// broadcastChange tells every other live session about a settlement change,
// with a likelihood score computed per recipient.
func (m *SettlementManager) broadcastChange(origin *client.Client, step protocol.SettlementStep, settlement *data.Settlement) {
	for _, peer := range m.registry.All() {
		if peer == origin || !peer.LoggedIn() {
			continue
		}
		_ = peer.Send(protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{
			Step:       step,
			Tile:       settlement.Tile,
			Owner:      settlement.Owner,
			Likelihood: m.scorer.Score(peer, settlement.Owner),
		}))
	}
}

// SendAllTo replays the full settlement table to a freshly logged-in client,
// skipping its own settlements, which its save file already contains.
func (m *SettlementManager) SendAllTo(c *client.Client) error {
	settlements, err := data.ListSettlements(m.db)
	if err != nil {
		return fmt.Errorf("listing settlements: %w", err)
	}
	for i := range settlements {
		if settlements[i].Owner == c.Username() {
			continue
		}
		_ = c.Send(protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{
			Step:       protocol.SettlementAdd,
			Tile:       settlements[i].Tile,
			Owner:      settlements[i].Owner,
			Likelihood: m.scorer.Score(c, settlements[i].Owner),
		}))
	}
	return nil
}

// RemoveAllOwnedBy wipes a player's settlements, used by save resets and
// bans. The caller is expected to broadcast whatever follows.
func (m *SettlementManager) RemoveAllOwnedBy(username string) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()
	return data.DeleteSettlementsByOwner(m.db, username)
}

// tileOccupied reports whether a tile already holds a settlement or a site.
// Callers hold tileMu.
func tileOccupied(db *gorm.DB, tile string) (bool, error) {
	settlement, err := data.FindSettlementByTile(db, tile)
	if err != nil {
		return false, fmt.Errorf("checking tile %s: %w", tile, err)
	}
	if settlement != nil {
		return true, nil
	}
	site, err := data.FindSiteByTile(db, tile)
	if err != nil {
		return false, fmt.Errorf("checking tile %s: %w", tile, err)
	}
	return site != nil, nil
}
