package game

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// SaveManager persists player save files and settlement maps. Payloads
// arrive base64-encoded and are stored zstd-compressed.
type SaveManager struct {
	*deps
	maps *MapRequestManager
}

func NewSaveManager(d *deps, maps *MapRequestManager) *SaveManager {
	return &SaveManager{deps: d, maps: maps}
}

func (m *SaveManager) HandleSave(c *client.Client, packet protocol.Packet) error {
	var details protocol.SaveFileDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed save payload: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(details.Data)
	if err != nil {
		return fmt.Errorf("undecodable save payload from %s: %w", c.Username(), err)
	}

	record := &data.SaveRecord{
		Username: c.Username(),
		Data:     compress(payload),
		SavedAt:  time.Now().UTC(),
	}
	if err := data.UpsertSave(m.db, record); err != nil {
		return fmt.Errorf("storing save for %s: %w", c.Username(), err)
	}
	m.logger.Debugf("[WORLD] stored save for %s (mode %d, %d bytes)", c.Username(), details.Mode, len(payload))

	// A save sent on the way out is the session's last packet.
	if details.Mode == protocol.SaveDisconnect || details.Mode == protocol.SaveQuit {
		c.FlagDisconnect()
	}
	return nil
}

func (m *SaveManager) HandleMap(c *client.Client, packet protocol.Packet) error {
	var details protocol.MapDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed map payload: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(details.Data)
	if err != nil {
		return fmt.Errorf("undecodable map payload from %s: %w", c.Username(), err)
	}

	settlement, err := data.FindSettlementByTile(m.db, details.Tile)
	if err != nil {
		return fmt.Errorf("looking up tile %s: %w", details.Tile, err)
	}
	if settlement == nil || settlement.Owner != c.Username() {
		return fmt.Errorf("map upload from %s for tile %s it does not own", c.Username(), details.Tile)
	}

	record := &data.MapRecord{Tile: details.Tile, Owner: c.Username(), Data: compress(payload)}
	if err := data.UpsertMap(m.db, record); err != nil {
		return fmt.Errorf("storing map for tile %s: %w", details.Tile, err)
	}
	m.maps.Invalidate(details.Tile)
	return nil
}

// HandleReset wipes everything the player owns: save, maps, settlements and
// sites. The client starts over on its next login.
func (m *SaveManager) HandleReset(c *client.Client) error {
	if err := m.WipePlayer(c.Username()); err != nil {
		return err
	}
	m.logger.Infof("[WORLD] %s reset their save", c.Username())
	c.FlagDisconnect()
	return nil
}

func (m *SaveManager) WipePlayer(username string) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	if err := data.DeleteSaveByUsername(m.db, username); err != nil {
		return fmt.Errorf("deleting save for %s: %w", username, err)
	}
	records, err := data.ListMapsByOwner(m.db, username)
	if err != nil {
		return fmt.Errorf("listing maps for %s: %w", username, err)
	}
	for i := range records {
		m.maps.Invalidate(records[i].Tile)
	}
	if err := data.DeleteMapsByOwner(m.db, username); err != nil {
		return fmt.Errorf("deleting maps for %s: %w", username, err)
	}
	if err := data.DeleteSettlementsByOwner(m.db, username); err != nil {
		return fmt.Errorf("deleting settlements for %s: %w", username, err)
	}
	if err := data.DeleteSitesByOwner(m.db, username); err != nil {
		return fmt.Errorf("deleting sites for %s: %w", username, err)
	}
	return nil
}

// SendSaveTo replays a stored save file to a logging-in client. It reports
// whether one existed, which decides if the client resumes or starts fresh.
func (m *SaveManager) SendSaveTo(c *client.Client) (bool, error) {
	record, err := data.FindSaveByUsername(m.db, c.Username())
	if err != nil {
		return false, fmt.Errorf("loading save for %s: %w", c.Username(), err)
	}
	if record == nil {
		return false, nil
	}
	payload, err := decompress(record.Data)
	if err != nil {
		return false, fmt.Errorf("corrupt save for %s: %w", c.Username(), err)
	}
	err = c.Send(protocol.Make(protocol.KindLoadFile, &protocol.SaveFileDetails{
		Data: base64.StdEncoding.EncodeToString(payload),
	}))
	return true, err
}
