package game

import (
	"fmt"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// likelihoodPusher recomputes and pushes observer-relative scores for one
// session after its relationships change.
type likelihoodPusher interface {
	PushLikelihoods(c *client.Client) error
}

// FactionManager owns faction membership. Invites are held in an expiring
// cache rather than the database: an invite not accepted within the
// configured timeout simply lapses.
type FactionManager struct {
	*deps
	sites     *SiteManager
	relations likelihoodPusher
	invites   *cache.Cache
}

func NewFactionManager(d *deps, sites *SiteManager, relations likelihoodPusher) *FactionManager {
	timeout := d.config.Game.InviteTimeout
	return &FactionManager{
		deps:      d,
		sites:     sites,
		relations: relations,
		invites:   cache.New(timeout, timeout),
	}
}

// refreshLikelihoods re-pushes scores to every connected member of the
// faction plus the session whose membership just changed. A membership
// change moves tiles between the faction band and the neutral band on both
// sides of the relation.
func (m *FactionManager) refreshLikelihoods(factionName string, changed *client.Client) {
	for _, peer := range m.registry.All() {
		if !peer.LoggedIn() {
			continue
		}
		if peer != changed && peer.FactionName() != factionName {
			continue
		}
		if err := m.relations.PushLikelihoods(peer); err != nil {
			m.logger.Warnf("[WORLD] refreshing likelihoods for %s: %v", peer.Username(), err)
		}
	}
}

func (m *FactionManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var manifest protocol.FactionManifest
	if err := packet.Payload(&manifest); err != nil {
		return fmt.Errorf("malformed faction payload: %w", err)
	}

	m.factionMu.Lock()
	defer m.factionMu.Unlock()

	switch manifest.Mode {
	case protocol.FactionCreate:
		return m.handleCreate(c, manifest.Details)
	case protocol.FactionDelete:
		return m.handleDelete(c)
	case protocol.FactionAddMember:
		return m.handleInvite(c, manifest.Details)
	case protocol.FactionAcceptInvite:
		return m.handleAcceptInvite(c, manifest.Details)
	case protocol.FactionRemoveMember:
		return m.handleRemove(c, manifest.Details)
	case protocol.FactionPromote:
		return m.handleRankChange(c, manifest.Details, data.RankModerator)
	case protocol.FactionDemote:
		return m.handleRankChange(c, manifest.Details, data.RankMember)
	case protocol.FactionMemberList:
		return m.handleMemberList(c)
	default:
		return fmt.Errorf("unknown faction mode %d", manifest.Mode)
	}
}

func (m *FactionManager) handleCreate(c *client.Client, name string) error {
	if name == "" {
		return fmt.Errorf("faction creation without a name")
	}
	if c.HasFaction() {
		return fmt.Errorf("%s tried to create a faction while in %s", c.Username(), c.FactionName())
	}

	existing, err := data.FindFactionByName(m.db, name)
	if err != nil {
		return fmt.Errorf("looking up faction %s: %w", name, err)
	}
	if existing != nil {
		_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionNameInUse}))
		return nil
	}

	if _, err := data.CreateFaction(m.db, name, c.Username()); err != nil {
		return fmt.Errorf("creating faction: %w", err)
	}
	if err := m.setUserFaction(c, name); err != nil {
		return err
	}

	m.logger.Infof("[WORLD] %s founded the faction %s", c.Username(), name)
	_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionCreate, Details: name}))
	return nil
}

func (m *FactionManager) handleDelete(c *client.Client) error {
	faction, rank, err := m.callerStanding(c)
	if err != nil {
		return err
	}
	if rank < data.RankAdmin {
		m.sendNoPower(c)
		return nil
	}

	members, err := data.ListFactionMembers(m.db, faction.ID)
	if err != nil {
		return fmt.Errorf("listing members of %s: %w", faction.Name, err)
	}
	if err := data.DeleteFaction(m.db, faction); err != nil {
		return fmt.Errorf("deleting faction %s: %w", faction.Name, err)
	}
	if err := m.sites.RemoveAllOfFaction(faction.Name); err != nil {
		return fmt.Errorf("destroying sites of %s: %w", faction.Name, err)
	}

	m.logger.Infof("[WORLD] %s dissolved the faction %s", c.Username(), faction.Name)
	for _, member := range members {
		peer := m.registry.FindByUsername(member.Username)
		if err := m.clearUserFaction(member.Username, peer); err != nil {
			m.logger.Warnf("[WORLD] clearing faction for %s: %v", member.Username, err)
		}
		if peer != nil {
			_ = peer.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionDelete}))
		}
	}
	return nil
}

// handleInvite targets the owner of the settlement tile named in the
// manifest. The invitee must be online and factionless; the invite lives in
// the expiring cache until accepted.
func (m *FactionManager) handleInvite(c *client.Client, tile string) error {
	faction, rank, err := m.callerStanding(c)
	if err != nil {
		return err
	}
	if rank < data.RankModerator {
		m.sendNoPower(c)
		return nil
	}

	target, err := m.ownerOfTile(tile)
	if err != nil {
		return err
	}
	peer := m.registry.FindByUsername(target)
	if peer == nil || peer.HasFaction() {
		m.sendUnavailable(c)
		return nil
	}

	m.invites.SetDefault(inviteKey(target, faction.Name), struct{}{})
	m.logger.Infof("[WORLD] %s invited %s to %s", c.Username(), target, faction.Name)
	_ = peer.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{
		Mode:    protocol.FactionAddMember,
		Details: faction.Name,
	}))
	return nil
}

func (m *FactionManager) handleAcceptInvite(c *client.Client, factionName string) error {
	key := inviteKey(c.Username(), factionName)
	if _, found := m.invites.Get(key); !found {
		return fmt.Errorf("%s accepted a faction invite that was never issued", c.Username())
	}
	m.invites.Delete(key)

	if c.HasFaction() {
		return fmt.Errorf("%s accepted an invite while already in %s", c.Username(), c.FactionName())
	}
	faction, err := data.FindFactionByName(m.db, factionName)
	if err != nil {
		return fmt.Errorf("looking up faction %s: %w", factionName, err)
	}
	if faction == nil {
		// Faction dissolved while the invite was pending.
		m.sendBreak(c)
		return nil
	}

	if err := data.AddFactionMember(m.db, faction.ID, c.Username(), data.RankMember); err != nil {
		return fmt.Errorf("adding %s to %s: %w", c.Username(), factionName, err)
	}
	if err := m.setUserFaction(c, factionName); err != nil {
		return err
	}

	m.logger.Infof("[WORLD] %s joined the faction %s", c.Username(), factionName)
	_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{
		Mode:    protocol.FactionAcceptInvite,
		Details: factionName,
	}))
	m.refreshLikelihoods(factionName, c)
	return nil
}

// handleRemove covers both leaving and kicking. A member may always remove
// itself; removing someone else takes moderator rank and a lower-ranked
// target. Faction admins cannot be removed, only dissolved with the faction.
func (m *FactionManager) handleRemove(c *client.Client, tile string) error {
	faction, callerRank, err := m.callerStanding(c)
	if err != nil {
		return err
	}
	target, err := m.ownerOfTile(tile)
	if err != nil {
		return err
	}

	targetMember, err := data.FindFactionMember(m.db, faction.ID, target)
	if err != nil {
		return fmt.Errorf("looking up member %s: %w", target, err)
	}
	if targetMember == nil {
		return fmt.Errorf("%s tried to remove %s, who is not in %s", c.Username(), target, faction.Name)
	}

	if targetMember.Rank >= data.RankAdmin {
		_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionAdminProtection}))
		return nil
	}
	if target != c.Username() && (callerRank < data.RankModerator || targetMember.Rank >= callerRank) {
		m.sendNoPower(c)
		return nil
	}

	if err := data.RemoveFactionMember(m.db, faction.ID, target); err != nil {
		return fmt.Errorf("removing %s from %s: %w", target, faction.Name, err)
	}
	peer := m.registry.FindByUsername(target)
	if err := m.clearUserFaction(target, peer); err != nil {
		return err
	}

	m.logger.Infof("[WORLD] %s removed %s from %s", c.Username(), target, faction.Name)
	if peer != nil && peer != c {
		_ = peer.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionRemoveMember}))
	}
	if c.Username() == target {
		_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionRemoveMember}))
	}
	m.refreshLikelihoods(faction.Name, peer)
	return nil
}

// handleRankChange promotes to moderator or demotes to member. Promotion
// takes moderator standing or better; demotion is an admin call.
func (m *FactionManager) handleRankChange(c *client.Client, tile string, newRank data.FactionRank) error {
	faction, callerRank, err := m.callerStanding(c)
	if err != nil {
		return err
	}
	required := data.RankModerator
	if newRank == data.RankMember {
		required = data.RankAdmin
	}
	if callerRank < required {
		m.sendNoPower(c)
		return nil
	}

	target, err := m.ownerOfTile(tile)
	if err != nil {
		return err
	}
	targetMember, err := data.FindFactionMember(m.db, faction.ID, target)
	if err != nil {
		return fmt.Errorf("looking up member %s: %w", target, err)
	}
	if targetMember == nil {
		return fmt.Errorf("rank change for %s, who is not in %s", target, faction.Name)
	}
	if targetMember.Rank >= data.RankAdmin {
		_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionAdminProtection}))
		return nil
	}

	if err := data.SetFactionMemberRank(m.db, faction.ID, target, newRank); err != nil {
		return fmt.Errorf("setting rank for %s: %w", target, err)
	}
	m.logger.Infof("[WORLD] %s set %s to %s in %s", c.Username(), target, newRank, faction.Name)

	mode := protocol.FactionPromote
	if newRank == data.RankMember {
		mode = protocol.FactionDemote
	}
	if peer := m.registry.FindByUsername(target); peer != nil {
		_ = peer.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: mode}))
	}
	return nil
}

func (m *FactionManager) handleMemberList(c *client.Client) error {
	faction, _, err := m.callerStanding(c)
	if err != nil {
		return err
	}
	members, err := data.ListFactionMembers(m.db, faction.ID)
	if err != nil {
		return fmt.Errorf("listing members of %s: %w", faction.Name, err)
	}

	entries := make([]protocol.FactionMemberEntry, 0, len(members))
	for _, member := range members {
		entries = append(entries, protocol.FactionMemberEntry{
			Username: member.Username,
			Rank:     int(member.Rank),
		})
	}
	_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{
		Mode:    protocol.FactionMemberList,
		Details: faction.Name,
		Members: entries,
	}))
	return nil
}

// callerStanding resolves the caller's faction record and rank. A faction
// packet from a factionless caller (other than Create/AcceptInvite) is a
// protocol violation.
func (m *FactionManager) callerStanding(c *client.Client) (*data.Faction, data.FactionRank, error) {
	if !c.HasFaction() {
		return nil, 0, fmt.Errorf("faction action from %s, who has no faction", c.Username())
	}
	faction, err := data.FindFactionByName(m.db, c.FactionName())
	if err != nil {
		return nil, 0, fmt.Errorf("looking up faction %s: %w", c.FactionName(), err)
	}
	if faction == nil {
		return nil, 0, fmt.Errorf("%s belongs to unknown faction %s", c.Username(), c.FactionName())
	}
	rank, err := memberRank(m.db, faction.Name, c.Username())
	if err != nil {
		return nil, 0, err
	}
	return faction, rank, nil
}

func (m *FactionManager) ownerOfTile(tile string) (string, error) {
	settlement, err := data.FindSettlementByTile(m.db, tile)
	if err != nil {
		return "", fmt.Errorf("looking up tile %s: %w", tile, err)
	}
	if settlement == nil {
		return "", fmt.Errorf("faction action against unknown tile %s", tile)
	}
	return settlement.Owner, nil
}

func (m *FactionManager) setUserFaction(c *client.Client, name string) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, err := data.FindUserByUsername(m.db, c.Username())
	if err != nil || user == nil {
		return fmt.Errorf("loading user %s: %w", c.Username(), err)
	}
	if err := data.UpdateUserFaction(m.db, user.Username, name); err != nil {
		return fmt.Errorf("saving user %s: %w", c.Username(), err)
	}
	c.SetFaction(name)
	return nil
}

func (m *FactionManager) clearUserFaction(username string, peer *client.Client) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, err := data.FindUserByUsername(m.db, username)
	if err != nil || user == nil {
		return fmt.Errorf("loading user %s: %w", username, err)
	}
	if err := data.UpdateUserFaction(m.db, user.Username, ""); err != nil {
		return fmt.Errorf("saving user %s: %w", username, err)
	}
	if peer != nil {
		peer.SetFaction("")
	}
	return nil
}

func inviteKey(username, factionName string) string {
	return username + "\x00" + factionName
}

// memberRank resolves a username's rank within a faction.
func memberRank(db *gorm.DB, factionName, username string) (data.FactionRank, error) {
	faction, err := data.FindFactionByName(db, factionName)
	if err != nil {
		return 0, fmt.Errorf("looking up faction %s: %w", factionName, err)
	}
	if faction == nil {
		return 0, fmt.Errorf("unknown faction %s", factionName)
	}
	member, err := data.FindFactionMember(db, faction.ID, username)
	if err != nil {
		return 0, fmt.Errorf("looking up member %s: %w", username, err)
	}
	if member == nil {
		return 0, fmt.Errorf("%s is not a member of %s", username, factionName)
	}
	return member.Rank, nil
}
