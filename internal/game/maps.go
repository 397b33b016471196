package game

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

const mapCacheTTL = 10 * time.Minute

// MapRequestManager answers offline-visit, spy and raid requests. All three
// are the same server-side operation: hand the caller the stored map of a
// tile whose owner is offline. The kinds stay distinct on the wire because
// the client resolves them into very different in-game outcomes.
//
// Decompressed map payloads are kept in a TTL'd cache; a raid tends to be
// followed by more requests against the same tile.
type MapRequestManager struct {
	*deps
	payloads *cache.Cache
}

func NewMapRequestManager(d *deps) *MapRequestManager {
	return &MapRequestManager{
		deps:     d,
		payloads: cache.New(mapCacheTTL, mapCacheTTL),
	}
}

// Invalidate drops the cached payload for a tile after its map changes.
func (m *MapRequestManager) Invalidate(tile string) {
	m.payloads.Delete(tile)
}

func (m *MapRequestManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var details protocol.MapRequestDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed %s payload: %w", packet.Kind, err)
	}
	if details.Step != protocol.MapRequest {
		return fmt.Errorf("unexpected %s step %d from %s", packet.Kind, details.Step, c.Username())
	}

	settlement, err := data.FindSettlementByTile(m.db, details.Tile)
	if err != nil {
		return fmt.Errorf("looking up tile %s: %w", details.Tile, err)
	}
	if settlement == nil {
		return fmt.Errorf("%s request against unknown tile %s", packet.Kind, details.Tile)
	}
	if settlement.Owner == c.Username() {
		return fmt.Errorf("%s request by %s against its own tile %s", packet.Kind, c.Username(), details.Tile)
	}

	// Online owners are reached through the visit flow instead.
	if peer := m.registry.FindByUsername(settlement.Owner); peer != nil && peer.LoggedIn() {
		m.deny(c, packet.Kind, details.Tile)
		return nil
	}

	var mapData []byte
	if cached, ok := m.payloads.Get(details.Tile); ok {
		mapData = cached.([]byte)
	} else {
		record, err := data.FindMapByTile(m.db, details.Tile)
		if err != nil {
			return fmt.Errorf("looking up map for tile %s: %w", details.Tile, err)
		}
		if record == nil {
			m.deny(c, packet.Kind, details.Tile)
			return nil
		}
		mapData, err = decompress(record.Data)
		if err != nil {
			m.logger.Errorf("[WORLD] corrupt map payload for tile %s: %v", details.Tile, err)
			m.deny(c, packet.Kind, details.Tile)
			return nil
		}
		m.payloads.SetDefault(details.Tile, mapData)
	}

	m.logger.Infof("[WORLD] %s retrieved the map of tile %s (%s)", c.Username(), details.Tile, packet.Kind)
	_ = c.Send(protocol.Make(packet.Kind, &protocol.MapRequestDetails{
		Step:    protocol.MapRequest,
		Tile:    details.Tile,
		MapData: base64.StdEncoding.EncodeToString(mapData),
	}))
	return nil
}

func (m *MapRequestManager) deny(c *client.Client, kind, tile string) {
	_ = c.Send(protocol.Make(kind, &protocol.MapRequestDetails{Step: protocol.MapDeny, Tile: tile}))
}
