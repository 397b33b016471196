package game

import (
	"bufio"
	"context"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cairnway/cairnway/internal/core"
	"github.com/cairnway/cairnway/internal/core/auth"
	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

func setUpServer(t *testing.T) (*Server, *gorm.DB, *client.Registry) {
	t.Helper()

	testDBFile := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(testDBFile))
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	if err := data.Migrate(db); err != nil {
		t.Fatalf("error migrating test database: %s", err)
	}

	config := core.DefaultConfig()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := client.NewRegistry(config.MaxPlayers)

	server := NewServer("TEST", config, logger, db, registry)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := server.Init(ctx); err != nil {
		t.Fatalf("error initializing server: %s", err)
	}
	return server, db, registry
}

// recorder collects the packets the server writes to one session.
type recorder struct {
	mu      sync.Mutex
	packets []protocol.Packet
}

func (r *recorder) run(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		packet, err := protocol.Decode(scanner.Bytes())
		if err != nil {
			return
		}
		r.mu.Lock()
		r.packets = append(r.packets, packet)
		r.mu.Unlock()
	}
}

// lastOfKind returns the most recent packet of the kind, waiting briefly
// for in-flight writes to land.
func (r *recorder) lastOfKind(t *testing.T, kind string) protocol.Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for i := len(r.packets) - 1; i >= 0; i-- {
			if r.packets[i].Kind == kind {
				packet := r.packets[i]
				r.mu.Unlock()
				return packet
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s packet received", kind)
	return protocol.Packet{}
}

func (r *recorder) hasKind(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.packets {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = nil
}

// connect attaches a raw, not-logged-in session to the server.
func connect(t *testing.T, server *Server, registry *client.Registry) (*client.Client, *recorder) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	c := client.NewClient(serverSide)
	server.SetUpClient(c)
	if !registry.Add(c) {
		t.Fatal("registry refused test client")
	}

	rec := &recorder{}
	go rec.run(clientSide)
	return c, rec
}

// login registers the account if needed and runs the full login flow.
func login(t *testing.T, server *Server, db *gorm.DB, registry *client.Registry, username string) (*client.Client, *recorder) {
	t.Helper()
	if existing, err := data.FindUserByUsername(db, username); err != nil {
		t.Fatalf("error looking up user: %v", err)
	} else if existing == nil {
		if _, err := auth.RegisterUser(db, username, "hunter2"); err != nil {
			t.Fatalf("error registering %s: %v", username, err)
		}
	}

	c, rec := connect(t, server, registry)
	packet := protocol.Make(protocol.KindLogin, &protocol.LoginDetails{Username: username, Password: "hunter2"})
	if err := server.Handle(context.Background(), c, packet); err != nil {
		t.Fatalf("error logging in %s: %v", username, err)
	}
	if !c.LoggedIn() {
		t.Fatalf("expected %s to be logged in", username)
	}
	rec.lastOfKind(t, protocol.KindPlayerRecount)
	rec.reset()
	return c, rec
}

// registerThenLogin drives the login flow on an already connected session
// without clearing its recorder, so tests can inspect the bootstrap.
func registerThenLogin(t *testing.T, server *Server, db *gorm.DB, c *client.Client, username string) {
	t.Helper()
	if _, err := auth.RegisterUser(db, username, "hunter2"); err != nil {
		t.Fatalf("error registering %s: %v", username, err)
	}
	handle(t, server, c, protocol.Make(protocol.KindLogin, &protocol.LoginDetails{
		Username: username,
		Password: "hunter2",
	}))
}

func seedSettlement(t *testing.T, server *Server, tile, owner string) {
	t.Helper()
	if err := data.CreateSettlement(server.deps.db, &data.Settlement{Tile: tile, Owner: owner}); err != nil {
		t.Fatalf("error seeding settlement: %v", err)
	}
}

func handle(t *testing.T, server *Server, c *client.Client, packet protocol.Packet) {
	t.Helper()
	if err := server.Handle(context.Background(), c, packet); err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
}

func TestHandleRejectsUnauthenticatedTraffic(t *testing.T) {
	server, _, registry := setUpServer(t)
	c, _ := connect(t, server, registry)

	packet := protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{Step: protocol.SettlementAdd, Tile: "1"})
	if err := server.Handle(context.Background(), c, packet); err == nil {
		t.Error("expected domain traffic before login to be rejected")
	}
}

func TestHandleIgnoresUnknownKinds(t *testing.T) {
	server, db, registry := setUpServer(t)
	c, _ := login(t, server, db, registry, "ada")

	if err := server.Handle(context.Background(), c, protocol.New("no-such-kind")); err != nil {
		t.Errorf("expected unknown kind to be ignored, got %v", err)
	}
}

func TestDuplicateLoginEvictsFirstSession(t *testing.T) {
	server, db, registry := setUpServer(t)
	first, firstRec := login(t, server, db, registry, "ada")

	second, secondRec := connect(t, server, registry)
	packet := protocol.Make(protocol.KindLogin, &protocol.LoginDetails{Username: "ada", Password: "hunter2"})
	handle(t, server, second, packet)

	if !second.LoggedIn() {
		t.Error("expected the new session to be admitted")
	}
	response := firstRec.lastOfKind(t, protocol.KindLoginResponse)
	var details protocol.LoginDetails
	if err := response.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if details.Response != protocol.ResponseExtraLogin {
		t.Errorf("expected extra-login response, got %d", details.Response)
	}
	if !first.Disconnecting() {
		t.Error("expected the old session to be flagged for eviction")
	}
	secondRec.lastOfKind(t, protocol.KindWorld)
}

func TestLoginRefusesBadCredentials(t *testing.T) {
	server, db, registry := setUpServer(t)
	if _, err := auth.RegisterUser(db, "ada", "hunter2"); err != nil {
		t.Fatalf("error registering user: %v", err)
	}

	c, rec := connect(t, server, registry)
	packet := protocol.Make(protocol.KindLogin, &protocol.LoginDetails{Username: "ada", Password: "wrong"})
	handle(t, server, c, packet)

	response := rec.lastOfKind(t, protocol.KindLoginResponse)
	var details protocol.LoginDetails
	if err := response.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if details.Response != protocol.ResponseInvalidLogin {
		t.Errorf("expected invalid-login response, got %d", details.Response)
	}
	if c.LoggedIn() {
		t.Error("expected session to stay unauthenticated")
	}
	if !c.Disconnecting() {
		t.Error("expected refused session to be flagged for eviction")
	}
}

func TestLoginRefusalOrder(t *testing.T) {
	server, db, registry := setUpServer(t)
	if _, err := auth.RegisterUser(db, "ada", "hunter2"); err != nil {
		t.Fatalf("error registering user: %v", err)
	}

	refusal := func(t *testing.T, details protocol.LoginDetails) protocol.LoginResponse {
		t.Helper()
		c, rec := connect(t, server, registry)
		handle(t, server, c, protocol.Make(protocol.KindLogin, &details))
		response := rec.lastOfKind(t, protocol.KindLoginResponse)
		var reply protocol.LoginDetails
		if err := response.Payload(&reply); err != nil {
			t.Fatalf("error unmarshaling response: %v", err)
		}
		return reply.Response
	}

	t.Run("whitelist outranks credentials", func(t *testing.T) {
		server.users.whitelist = &Whitelist{Enabled: true, Users: []string{"brin"}}
		t.Cleanup(func() { server.users.whitelist = &Whitelist{} })

		got := refusal(t, protocol.LoginDetails{Username: "ada", Password: "wrong"})
		if got != protocol.ResponseNotWhitelisted {
			t.Errorf("expected not-whitelisted response, got %d", got)
		}
	})

	t.Run("credentials outrank mods", func(t *testing.T) {
		server.users.mods = &ModChecker{forbidden: toSet([]string{"xray"})}
		t.Cleanup(func() { server.users.mods = NewModChecker(server.deps.config) })

		got := refusal(t, protocol.LoginDetails{Username: "ada", Password: "wrong", Mods: []string{"xray"}})
		if got != protocol.ResponseInvalidLogin {
			t.Errorf("expected invalid-login response, got %d", got)
		}
	})

	t.Run("mods outrank ban", func(t *testing.T) {
		user, err := data.FindUserByUsername(db, "ada")
		if err != nil || user == nil {
			t.Fatalf("expected persisted user, got %v (%v)", user, err)
		}
		user.Banned = true
		if err := data.SaveUser(db, user); err != nil {
			t.Fatalf("error saving user: %v", err)
		}
		server.users.mods = &ModChecker{forbidden: toSet([]string{"xray"})}
		t.Cleanup(func() { server.users.mods = NewModChecker(server.deps.config) })

		got := refusal(t, protocol.LoginDetails{Username: "ada", Password: "hunter2", Mods: []string{"xray"}})
		if got != protocol.ResponseWrongMods {
			t.Errorf("expected wrong-mods response, got %d", got)
		}

		server.users.mods = NewModChecker(server.deps.config)
		got = refusal(t, protocol.LoginDetails{Username: "ada", Password: "hunter2"})
		if got != protocol.ResponseBannedLogin {
			t.Errorf("expected banned response, got %d", got)
		}
	})
}

func TestRegisterFlow(t *testing.T) {
	server, db, registry := setUpServer(t)
	c, rec := connect(t, server, registry)

	packet := protocol.Make(protocol.KindRegister, &protocol.LoginDetails{Username: "ada", Password: "hunter2"})
	handle(t, server, c, packet)

	response := rec.lastOfKind(t, protocol.KindLoginResponse)
	var details protocol.LoginDetails
	if err := response.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if details.Response != protocol.ResponseRegisterSuccess {
		t.Errorf("expected register success, got %d", details.Response)
	}

	// Registering the same name again, regardless of case, is refused.
	rec.reset()
	packet = protocol.Make(protocol.KindRegister, &protocol.LoginDetails{Username: "ADA", Password: "other"})
	handle(t, server, c, packet)
	response = rec.lastOfKind(t, protocol.KindLoginResponse)
	if err := response.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if details.Response != protocol.ResponseRegisterInUse {
		t.Errorf("expected register in-use, got %d", details.Response)
	}

	user, err := data.FindUserByUsername(db, "ada")
	if err != nil || user == nil {
		t.Fatalf("expected persisted user, got %v (%v)", user, err)
	}
}
