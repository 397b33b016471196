package game

import (
	"errors"
	"fmt"

	"github.com/cairnway/cairnway/internal/core/auth"
	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// UserManager owns the login and registration flow, player relations, and
// the player recount broadcasts.
type UserManager struct {
	*deps
	chat      *ChatManager
	saves     *SaveManager
	world     *WorldManager
	mods      *ModChecker
	whitelist *Whitelist

	settlements *SettlementManager
	sites       *SiteManager
}

func NewUserManager(d *deps, chat *ChatManager, saves *SaveManager, world *WorldManager, mods *ModChecker, settlements *SettlementManager, sites *SiteManager) *UserManager {
	return &UserManager{
		deps:        d,
		chat:        chat,
		saves:       saves,
		world:       world,
		mods:        mods,
		settlements: settlements,
		sites:       sites,
	}
}

// HandleLogin authenticates a session and replays the world state it needs
// to start playing. Failures answer with a login-response and flag the
// session for eviction rather than erroring, so the client gets to render
// the reason. Refusals are evaluated in a fixed order the client relies
// on: shape, whitelist, credentials, mods, ban.
func (m *UserManager) HandleLogin(c *client.Client, packet protocol.Packet) error {
	if c.LoggedIn() {
		return fmt.Errorf("second login attempt from %s", c.Username())
	}
	var details protocol.LoginDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed login payload: %w", err)
	}

	if err := auth.ValidateCredentialShape(details.Username, details.Password); err != nil {
		m.refuse(c, protocol.ResponseInvalidLogin, nil)
		return nil
	}
	if !m.whitelist.Allowed(details.Username) {
		m.logger.Infof("[WORLD] refused %s: not whitelisted", details.Username)
		m.refuse(c, protocol.ResponseNotWhitelisted, nil)
		return nil
	}

	user, err := auth.VerifyUser(m.db, details.Username, details.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		m.refuse(c, protocol.ResponseInvalidLogin, nil)
		return nil
	case err != nil:
		return fmt.Errorf("verifying %s: %w", details.Username, err)
	}

	if conflicting := m.mods.Check(details.Mods); len(conflicting) > 0 {
		m.logger.Infof("[WORLD] refused %s over mod mismatch: %v", user.Username, conflicting)
		m.refuse(c, protocol.ResponseWrongMods, conflicting)
		return nil
	}
	if user.Banned {
		m.logger.Infof("[WORLD] refused %s: account banned", user.Username)
		m.refuse(c, protocol.ResponseBannedLogin, nil)
		return nil
	}

	// A second login for the same account evicts the first session.
	if existing := m.registry.FindByUsername(user.Username); existing != nil {
		m.logger.Warnf("[WORLD] evicting duplicate session for %s", user.Username)
		_ = existing.Send(protocol.Make(protocol.KindLoginResponse, &protocol.LoginDetails{Response: protocol.ResponseExtraLogin}))
		existing.FlagDisconnect()
	}

	if err := data.UpdateUserLastIP(m.db, user.Username, c.IPAddr()); err != nil {
		return fmt.Errorf("saving user %s: %w", user.Username, err)
	}
	c.SetIdentity(user.UID, user.Username, user.Admin, user.Banned, user.FactionName, user.AllyPlayers, user.EnemyPlayers)

	m.logger.Infof("[WORLD] %s logged in from %s", user.Username, c.IPAddr())
	if err := m.bootstrap(c); err != nil {
		return err
	}
	m.chat.BroadcastSystem(fmt.Sprintf("%s has joined.", user.Username))
	m.SendPlayerRecount()
	return nil
}

// bootstrap replays everything a fresh session needs, in dependency order:
// the world first, then the difficulty, the save file, and finally the
// other players' settlements and sites.
func (m *UserManager) bootstrap(c *client.Client) error {
	if err := m.world.SendWorldTo(c); err != nil {
		return err
	}
	if err := m.world.SendDifficultyTo(c); err != nil {
		return err
	}
	if _, err := m.saves.SendSaveTo(c); err != nil {
		return err
	}
	if err := m.settlements.SendAllTo(c); err != nil {
		return err
	}
	return m.sites.SendAllTo(c)
}

func (m *UserManager) HandleRegister(c *client.Client, packet protocol.Packet) error {
	if c.LoggedIn() {
		return fmt.Errorf("registration attempt from logged-in session %s", c.Username())
	}
	var details protocol.LoginDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed register payload: %w", err)
	}

	_, err := auth.RegisterUser(m.db, details.Username, details.Password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		m.respond(c, protocol.ResponseRegisterInUse)
		return nil
	case errors.Is(err, auth.ErrMalformedLogin):
		m.respond(c, protocol.ResponseRegisterError)
		return nil
	case err != nil:
		return fmt.Errorf("registering %s: %w", details.Username, err)
	}

	m.logger.Infof("[WORLD] registered new user %s from %s", details.Username, c.IPAddr())
	m.respond(c, protocol.ResponseRegisterSuccess)
	return nil
}

// HandleRelationChange updates the sender's ally or enemy standing with
// another player and pushes the recomputed likelihood scores back.
func (m *UserManager) HandleRelationChange(c *client.Client, packet protocol.Packet) error {
	var details protocol.RelationDetails
	if err := packet.Payload(&details); err != nil {
		return fmt.Errorf("malformed relation payload: %w", err)
	}
	if details.Target == "" || details.Target == c.Username() {
		return fmt.Errorf("bad relation target from %s", c.Username())
	}

	allies, enemies, err := m.applyRelation(c.Username(), details)
	if err != nil {
		return err
	}
	c.SetRelations(allies, enemies)
	return m.PushLikelihoods(c)
}

// applyRelation runs the read-modify-write against the user's relation
// lists under the user lock, so it cannot interleave with other writers of
// the same row.
func (m *UserManager) applyRelation(username string, details protocol.RelationDetails) ([]string, []string, error) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, err := data.FindUserByUsername(m.db, username)
	if err != nil || user == nil {
		return nil, nil, fmt.Errorf("loading user %s: %w", username, err)
	}

	allies := without(user.AllyPlayers, details.Target)
	enemies := without(user.EnemyPlayers, details.Target)
	switch details.Relation {
	case protocol.RelationAlly:
		allies = append(allies, details.Target)
	case protocol.RelationEnemy:
		enemies = append(enemies, details.Target)
	case protocol.RelationNeutral:
	default:
		return nil, nil, fmt.Errorf("unknown relation %d from %s", details.Relation, username)
	}

	if err := data.UpdateUserRelations(m.db, username, allies, enemies); err != nil {
		return nil, nil, fmt.Errorf("saving user %s: %w", username, err)
	}
	return allies, enemies, nil
}

// PushLikelihoods recomputes the observer-relative scores for every tile
// the client can see and pushes them in one packet.
func (m *UserManager) PushLikelihoods(c *client.Client) error {
	settlements, err := data.ListSettlements(m.db)
	if err != nil {
		return fmt.Errorf("listing settlements: %w", err)
	}
	sites, err := data.ListSites(m.db)
	if err != nil {
		return fmt.Errorf("listing sites: %w", err)
	}

	var values protocol.LikelihoodValues
	for i := range settlements {
		if settlements[i].Owner == c.Username() {
			continue
		}
		values.Tiles = append(values.Tiles, settlements[i].Tile)
		values.Values = append(values.Values, m.scorer.Score(c, settlements[i].Owner))
	}
	for i := range sites {
		if sites[i].Owner == c.Username() {
			continue
		}
		values.Tiles = append(values.Tiles, sites[i].Tile)
		values.Values = append(values.Values, m.scorer.Score(c, sites[i].Owner))
	}
	return c.Send(protocol.Make(protocol.KindLikelihood, &values))
}

// SendPlayerRecount broadcasts the current roster to every live session.
func (m *UserManager) SendPlayerRecount() {
	var names []string
	clients := m.registry.All()
	for _, peer := range clients {
		if peer.LoggedIn() {
			names = append(names, peer.Username())
		}
	}
	packet := protocol.Make(protocol.KindPlayerRecount, &protocol.PlayerRecount{Count: len(names), Names: names})
	for _, peer := range clients {
		if peer.LoggedIn() {
			_ = peer.Send(packet)
		}
	}
}

func (m *UserManager) refuse(c *client.Client, response protocol.LoginResponse, conflicting []string) {
	_ = c.Send(protocol.Make(protocol.KindLoginResponse, &protocol.LoginDetails{
		Response:        response,
		ConflictingMods: conflicting,
	}))
	c.FlagDisconnect()
}

func (m *UserManager) respond(c *client.Client, response protocol.LoginResponse) {
	_ = c.Send(protocol.Make(protocol.KindLoginResponse, &protocol.LoginDetails{Response: response}))
}

func without(values []string, target string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
