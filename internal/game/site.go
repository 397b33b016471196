package game

import (
	"context"
	"fmt"
	"time"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// SiteManager owns the site records. Sites live in the same tile id space as
// settlements and share the tile lock with them.
type SiteManager struct {
	*deps
}

func NewSiteManager(d *deps) *SiteManager {
	return &SiteManager{deps: d}
}

func (m *SiteManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var details protocol.SiteDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed site payload: %w", err)
	}

	switch details.Step {
	case protocol.SiteBuild:
		return m.handleBuild(c, details)
	case protocol.SiteDestroy:
		return m.handleDestroy(c, details)
	case protocol.SiteInfo:
		return m.handleInfo(c, details)
	case protocol.SiteDeposit:
		return m.handleWorkers(c, details.Tile, details.WorkerData)
	case protocol.SiteRetrieve:
		return m.handleWorkers(c, details.Tile, "")
	default:
		return fmt.Errorf("unknown site step %d", details.Step)
	}
}

func (m *SiteManager) handleBuild(c *client.Client, details protocol.SiteDetails) error {
	if details.Tile == "" || details.Type == "" {
		return fmt.Errorf("site build without tile or type")
	}
	if details.FactionOwned {
		if !c.HasFaction() {
			return fmt.Errorf("%s requested a faction site without a faction", c.Username())
		}
		rank, err := memberRank(m.db, c.FactionName(), c.Username())
		if err != nil {
			return err
		}
		if rank < data.RankModerator {
			m.sendNoPower(c)
			return nil
		}
	}

	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	if taken, err := tileOccupied(m.db, details.Tile); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("site build on occupied tile %s by %s", details.Tile, c.Username())
	}

	site := &data.Site{
		Tile:         details.Tile,
		Owner:        c.Username(),
		Type:         details.Type,
		FactionOwned: details.FactionOwned,
	}
	if site.FactionOwned {
		site.FactionName = c.FactionName()
	}
	if err := data.CreateSite(m.db, site); err != nil {
		return fmt.Errorf("creating site: %w", err)
	}

	m.logger.Infof("[WORLD] %s built a %s site at tile %s", c.Username(), site.Type, site.Tile)
	_ = c.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{Step: protocol.SiteAccept, Tile: site.Tile}))
	m.broadcastChange(c, protocol.SiteBuild, site)
	return nil
}

func (m *SiteManager) handleDestroy(c *client.Client, details protocol.SiteDetails) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	site, err := data.FindSiteByTile(m.db, details.Tile)
	if err != nil {
		return fmt.Errorf("looking up site %s: %w", details.Tile, err)
	}
	if site == nil {
		return fmt.Errorf("site destroy for unknown tile %s", details.Tile)
	}
	if allowed, err := m.canManage(c, site); err != nil {
		return err
	} else if !allowed {
		return fmt.Errorf("%s tried to destroy the site at tile %s", c.Username(), site.Tile)
	}

	if err := data.DeleteSite(m.db, site); err != nil {
		return fmt.Errorf("deleting site: %w", err)
	}

	m.logger.Infof("[WORLD] %s destroyed the site at tile %s", c.Username(), site.Tile)
	m.broadcastChange(c, protocol.SiteDestroy, site)
	return nil
}

func (m *SiteManager) handleInfo(c *client.Client, details protocol.SiteDetails) error {
	site, err := data.FindSiteByTile(m.db, details.Tile)
	if err != nil {
		return fmt.Errorf("looking up site %s: %w", details.Tile, err)
	}
	if site == nil {
		m.sendUnavailable(c)
		return nil
	}
	_ = c.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{
		Step:         protocol.SiteInfo,
		Tile:         site.Tile,
		Owner:        site.Owner,
		Type:         site.Type,
		FactionOwned: site.FactionOwned,
		Likelihood:   m.scorer.Score(c, site.Owner),
	}))
	return nil
}

// handleWorkers sets or clears the worker payload on a personal site. A
// site with workers becomes reward-eligible; faction sites always are.
func (m *SiteManager) handleWorkers(c *client.Client, tile, workerData string) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	site, err := data.FindSiteByTile(m.db, tile)
	if err != nil {
		return fmt.Errorf("looking up site %s: %w", tile, err)
	}
	if site == nil {
		return fmt.Errorf("worker change for unknown site tile %s", tile)
	}
	if site.Owner != c.Username() || site.FactionOwned {
		return fmt.Errorf("%s tried to change workers on site %s", c.Username(), tile)
	}
	if workerData != "" && site.WorkerData != "" {
		return fmt.Errorf("deposit into site %s that already has workers", tile)
	}

	retrieved := site.WorkerData
	site.WorkerData = workerData
	if err := data.SaveSite(m.db, site); err != nil {
		return fmt.Errorf("saving site: %w", err)
	}

	if workerData == "" {
		_ = c.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{
			Step:       protocol.SiteRetrieve,
			Tile:       site.Tile,
			WorkerData: retrieved,
		}))
	} else {
		_ = c.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{Step: protocol.SiteAccept, Tile: site.Tile}))
	}
	return nil
}

// canManage reports whether c may destroy a site: its owner, an admin, or a
// moderator of the owning faction for faction sites.
func (m *SiteManager) canManage(c *client.Client, site *data.Site) (bool, error) {
	if c.IsAdmin() || site.Owner == c.Username() {
		return true, nil
	}
	if !site.FactionOwned || c.FactionName() != site.FactionName {
		return false, nil
	}
	rank, err := memberRank(m.db, site.FactionName, c.Username())
	if err != nil {
		return false, err
	}
	return rank >= data.RankModerator, nil
}

func (m *SiteManager) broadcastChange(origin *client.Client, step protocol.SiteStep, site *data.Site) {
	for _, peer := range m.registry.All() {
		if peer == origin || !peer.LoggedIn() {
			continue
		}
		_ = peer.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{
			Step:         step,
			Tile:         site.Tile,
			Owner:        site.Owner,
			Type:         site.Type,
			FactionOwned: site.FactionOwned,
			Likelihood:   m.scorer.Score(peer, site.Owner),
		}))
	}
}

// SendAllTo replays the full site table to a freshly logged-in client.
func (m *SiteManager) SendAllTo(c *client.Client) error {
	sites, err := data.ListSites(m.db)
	if err != nil {
		return fmt.Errorf("listing sites: %w", err)
	}
	for i := range sites {
		if sites[i].Owner == c.Username() {
			continue
		}
		_ = c.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{
			Step:         protocol.SiteBuild,
			Tile:         sites[i].Tile,
			Owner:        sites[i].Owner,
			Type:         sites[i].Type,
			FactionOwned: sites[i].FactionOwned,
			Likelihood:   m.scorer.Score(c, sites[i].Owner),
		}))
	}
	return nil
}

func (m *SiteManager) RemoveAllOwnedBy(username string) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()
	return data.DeleteSitesByOwner(m.db, username)
}

// RemoveAllOfFaction destroys every site of a dissolved faction and lets the
// connected players know each tile is free again.
func (m *SiteManager) RemoveAllOfFaction(factionName string) error {
	m.tileMu.Lock()
	defer m.tileMu.Unlock()

	sites, err := data.ListSitesByFaction(m.db, factionName)
	if err != nil {
		return fmt.Errorf("listing sites of %s: %w", factionName, err)
	}
	if err := data.DeleteSitesByFaction(m.db, factionName); err != nil {
		return fmt.Errorf("deleting sites of %s: %w", factionName, err)
	}
	for i := range sites {
		m.broadcastChange(nil, protocol.SiteDestroy, &sites[i])
	}
	return nil
}

// StartRewardTicker periodically pushes each live session the tiles of its
// reward-eligible sites: personal sites with workers deposited plus every
// site of the player's faction.
func (m *SiteManager) StartRewardTicker(ctx context.Context) {
	ticker := time.NewTicker(m.config.Game.SiteRewardInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.deliverRewards()
		}
	}
}

func (m *SiteManager) deliverRewards() {
	for _, c := range m.registry.All() {
		if !c.LoggedIn() {
			continue
		}
		tiles, err := m.rewardTilesFor(c)
		if err != nil {
			m.logger.Warnf("[WORLD] collecting reward sites for %s: %v", c.Username(), err)
			continue
		}
		if len(tiles) == 0 {
			continue
		}
		_ = c.Send(protocol.Make(protocol.KindSite, &protocol.SiteDetails{
			Step:        protocol.SiteReward,
			RewardTiles: tiles,
		}))
	}
}

func (m *SiteManager) rewardTilesFor(c *client.Client) ([]string, error) {
	var tiles []string
	personal, err := data.ListSitesByOwner(m.db, c.Username())
	if err != nil {
		return nil, err
	}
	for i := range personal {
		if personal[i].RewardEligible() {
			tiles = append(tiles, personal[i].Tile)
		}
	}
	if c.HasFaction() {
		factionSites, err := data.ListSitesByFaction(m.db, c.FactionName())
		if err != nil {
			return nil, err
		}
		for i := range factionSites {
			tiles = append(tiles, factionSites[i].Tile)
		}
	}
	return tiles, nil
}
