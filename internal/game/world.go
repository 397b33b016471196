package game

import (
	"fmt"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// WorldManager owns the singleton world description and the shared custom
// difficulty blob. The first client to log in generates the world and sends
// it back; everyone after that receives the stored one.
type WorldManager struct {
	*deps
}

func NewWorldManager(d *deps) *WorldManager {
	return &WorldManager{deps: d}
}

func (m *WorldManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var details protocol.WorldDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed world payload: %w", err)
	}
	if details.Step != protocol.WorldSaved {
		return fmt.Errorf("unexpected world step %d from %s", details.Step, c.Username())
	}

	existing, err := data.FindWorld(m.db)
	if err != nil {
		return fmt.Errorf("loading world: %w", err)
	}
	if existing != nil && !c.IsAdmin() {
		return fmt.Errorf("%s tried to overwrite the world", c.Username())
	}

	record := &data.WorldRecord{
		Seed:           details.Seed,
		PlanetCoverage: details.PlanetCoverage,
		Rainfall:       details.Rainfall,
		Temperature:    details.Temperature,
		Population:     details.Population,
		Pollution:      details.Pollution,
		Factions:       details.Factions,
	}
	if err := data.SaveWorld(m.db, record); err != nil {
		return fmt.Errorf("saving world: %w", err)
	}
	m.logger.Infof("[WORLD] world generated by %s (seed %s)", c.Username(), details.Seed)
	return nil
}

// SendWorldTo gives a logging-in client the stored world, or asks it to
// generate one if the server is brand new.
func (m *WorldManager) SendWorldTo(c *client.Client) error {
	record, err := data.FindWorld(m.db)
	if err != nil {
		return fmt.Errorf("loading world: %w", err)
	}
	if record == nil {
		return c.Send(protocol.Make(protocol.KindWorld, &protocol.WorldDetails{Step: protocol.WorldRequired}))
	}
	return c.Send(protocol.Make(protocol.KindWorld, &protocol.WorldDetails{
		Step:           protocol.WorldExisting,
		Seed:           record.Seed,
		PlanetCoverage: record.PlanetCoverage,
		Rainfall:       record.Rainfall,
		Temperature:    record.Temperature,
		Population:     record.Population,
		Pollution:      record.Pollution,
		Factions:       record.Factions,
	}))
}

// HandleDifficulty lets an admin replace the shared difficulty settings.
// Anyone else gets the stored blob pushed back to undo their local change.
func (m *WorldManager) HandleDifficulty(c *client.Client, packet protocol.Packet) error {
	var details protocol.DifficultyDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed difficulty payload: %w", err)
	}

	if !c.IsAdmin() {
		m.logger.Warnf("[WORLD] %s tried to change the difficulty without admin", c.Username())
		return m.SendDifficultyTo(c)
	}

	if err := data.SaveDifficulty(m.db, &data.DifficultyRecord{Values: details.Values}); err != nil {
		return fmt.Errorf("saving difficulty: %w", err)
	}
	m.logger.Infof("[WORLD] %s updated the custom difficulty", c.Username())

	packetOut := protocol.Make(protocol.KindCustomDifficulty, &details)
	for _, peer := range m.registry.All() {
		if peer != c && peer.LoggedIn() {
			_ = peer.Send(packetOut)
		}
	}
	return nil
}

// SendDifficultyTo pushes the stored difficulty blob, if any.
func (m *WorldManager) SendDifficultyTo(c *client.Client) error {
	record, err := data.FindDifficulty(m.db)
	if err != nil {
		return fmt.Errorf("loading difficulty: %w", err)
	}
	if record == nil {
		return nil
	}
	return c.Send(protocol.Make(protocol.KindCustomDifficulty, &protocol.DifficultyDetails{Values: record.Values}))
}
