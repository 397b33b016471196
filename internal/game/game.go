// Package game implements the world server: the dispatcher that routes
// decoded packets to their domain managers, and the managers themselves.
package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/cairnway/cairnway/internal/core"
	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/protocol"
)

// deps bundles the shared resources every domain manager needs. tileMu
// serializes read-modify-write sequences against the tile id space, which
// settlements and sites share; factionMu does the same for faction records
// and userMu for user rows, which the admin API mutates from outside the
// packet dispatch path. Where both are held, factionMu is taken first.
type deps struct {
	config   *core.Config
	logger   *logrus.Logger
	db       *gorm.DB
	registry *client.Registry
	scorer   Scorer

	tileMu    sync.Mutex
	factionMu sync.Mutex
	userMu    sync.Mutex
}

// sendUnavailable tells the caller its counterpart cannot be reached right
// now. The caller stays connected and may retry.
func (d *deps) sendUnavailable(c *client.Client) {
	_ = c.Send(protocol.New(protocol.KindUserUnavailable))
}

// sendBreak tells the caller to abort its current in-game flow.
func (d *deps) sendBreak(c *client.Client) {
	_ = c.Send(protocol.New(protocol.KindBreak))
}

// sendNoPower is the shared authorization-failure reply. Unlike protocol
// violations it does not disconnect the caller.
func (d *deps) sendNoPower(c *client.Client) {
	_ = c.Send(protocol.Make(protocol.KindFaction, &protocol.FactionManifest{Mode: protocol.FactionNoPower}))
}

// Server is the world server backend: one instance owns every domain
// manager and the routing table between packet kinds and managers.
type Server struct {
	name string
	deps *deps

	settlements *SettlementManager
	sites       *SiteManager
	factions    *FactionManager
	transfers   *TransferManager
	visits      *VisitManager
	maps        *MapRequestManager
	events      *EventManager
	chat        *ChatManager
	users       *UserManager
	saves       *SaveManager
	world       *WorldManager
	mods        *ModChecker
	whitelist   *Whitelist
}

func NewServer(name string, config *core.Config, logger *logrus.Logger, db *gorm.DB, registry *client.Registry) *Server {
	d := &deps{
		config:   config,
		logger:   logger,
		db:       db,
		registry: registry,
		scorer:   NewRelationScorer(db),
	}

	s := &Server{name: name, deps: d}
	s.settlements = NewSettlementManager(d)
	s.sites = NewSiteManager(d)
	s.transfers = NewTransferManager(d)
	s.visits = NewVisitManager(d)
	s.maps = NewMapRequestManager(d)
	s.events = NewEventManager(d)
	s.chat = NewChatManager(d)
	s.saves = NewSaveManager(d, s.maps)
	s.world = NewWorldManager(d)
	s.mods = NewModChecker(config)
	s.users = NewUserManager(d, s.chat, s.saves, s.world, s.mods, s.settlements, s.sites)
	s.factions = NewFactionManager(d, s.sites, s.users)
	return s
}

func (s *Server) Identifier() string { return s.name }

func (s *Server) Init(ctx context.Context) error {
	whitelist, err := LoadWhitelist(s.deps.config.Game.WhitelistFile)
	if err != nil {
		return fmt.Errorf("loading whitelist: %w", err)
	}
	s.whitelist = whitelist
	s.users.whitelist = whitelist

	go s.sites.StartRewardTicker(ctx)
	return nil
}

func (s *Server) SetUpClient(c *client.Client) {
	perSecond := s.deps.config.Game.ChatMessagesPerSecond
	c.ChatLimiter = rate.NewLimiter(rate.Limit(perSecond), chatBurst)
}

// Handle routes an inbound packet by kind to the owning domain manager.
// Unknown kinds are ignored rather than treated as errors, to tolerate
// protocol drift between client and server versions. A returned error is a
// protocol violation and costs the caller its connection.
func (s *Server) Handle(_ context.Context, c *client.Client, packet protocol.Packet) error {
	if s.deps.config.Debugging.PacketLoggingEnabled {
		s.deps.logger.Debug(spew.Sdump(packet))
	}

	switch packet.Kind {
	case protocol.KindLogin:
		return s.users.HandleLogin(c, packet)
	case protocol.KindRegister:
		return s.users.HandleRegister(c, packet)
	}

	if !c.LoggedIn() {
		return fmt.Errorf("%s packet from session that has not logged in", packet.Kind)
	}

	switch packet.Kind {
	case protocol.KindSettlement:
		return s.settlements.HandlePacket(c, packet)
	case protocol.KindSite:
		return s.sites.HandlePacket(c, packet)
	case protocol.KindFaction:
		return s.factions.HandlePacket(c, packet)
	case protocol.KindTransfer:
		return s.transfers.HandlePacket(c, packet)
	case protocol.KindVisit:
		return s.visits.HandlePacket(c, packet)
	case protocol.KindOfflineVisit, protocol.KindSpy, protocol.KindRaid:
		return s.maps.HandlePacket(c, packet)
	case protocol.KindEvent:
		return s.events.HandlePacket(c, packet)
	case protocol.KindBreak:
		s.events.HandleBreak(c)
		return nil
	case protocol.KindChat:
		return s.chat.HandlePacket(c, packet)
	case protocol.KindWorld:
		return s.world.HandlePacket(c, packet)
	case protocol.KindCustomDifficulty:
		return s.world.HandleDifficulty(c, packet)
	case protocol.KindSaveFile:
		return s.saves.HandleSave(c, packet)
	case protocol.KindMap:
		return s.saves.HandleMap(c, packet)
	case protocol.KindResetSave:
		return s.saves.HandleReset(c)
	case protocol.KindLikelihood:
		return s.users.HandleRelationChange(c, packet)
	default:
		s.deps.logger.Debugf("[%s] ignoring unknown packet kind %q from %s", s.name, packet.Kind, c.IPAddr())
		return nil
	}
}

// OnDisconnect runs after the liveness sweep has evicted a session: notify
// any visit partner, release the event lock bookkeeping, and let everyone
// know the player count changed.
func (s *Server) OnDisconnect(c *client.Client, visitPeer *client.Client) {
	if visitPeer != nil {
		_ = visitPeer.Send(protocol.Make(protocol.KindVisit, &protocol.VisitDetails{Step: protocol.VisitStop}))
	}
	s.events.forgetClient(c)
	s.users.SendPlayerRecount()
}

// ForceSaveAll tells every live session to save and disconnect. Used by the
// shutdown drain and by operators.
func (s *Server) ForceSaveAll() {
	packet := protocol.Make(protocol.KindCommand, &protocol.CommandDetails{Type: protocol.CommandForceSave})
	for _, c := range s.deps.registry.All() {
		_ = c.Send(packet)
	}
}
