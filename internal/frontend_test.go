package internal

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cairnway/cairnway/internal/core"
	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/protocol"
)

// echoBackend replies to every packet with a packet of the same kind, and
// treats the kind "bad" as a protocol violation.
type echoBackend struct {
	mu           sync.Mutex
	disconnected []*client.Client
}

func (b *echoBackend) Identifier() string                { return "TEST" }
func (b *echoBackend) Init(context.Context) error        { return nil }
func (b *echoBackend) SetUpClient(*client.Client)        {}
func (b *echoBackend) OnDisconnect(c *client.Client, _ *client.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = append(b.disconnected, c)
}

func (b *echoBackend) Handle(_ context.Context, c *client.Client, packet protocol.Packet) error {
	if packet.Kind == "bad" {
		return io.ErrUnexpectedEOF
	}
	return c.Send(protocol.New(packet.Kind))
}

func startTestFrontend(t *testing.T, maxPlayers int) (*frontend, *echoBackend) {
	t.Helper()

	config := core.DefaultConfig()
	config.Game.SweepInterval = 10 * time.Millisecond
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	backend := &echoBackend{}
	f := &frontend{
		Address:  "127.0.0.1:0",
		Backend:  backend,
		Config:   config,
		Logger:   logger,
		Registry: client.NewRegistry(maxPlayers),
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if err := f.Start(ctx, &wg); err != nil {
		t.Fatalf("error starting frontend: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return f, backend
}

func dialFrontend(t *testing.T, f *frontend) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", f.boundAddr.String())
	if err != nil {
		t.Fatalf("error dialing frontend: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFrontendEchoRoundTrip(t *testing.T) {
	f, _ := startTestFrontend(t, 10)

	const connections = 5
	var wg sync.WaitGroup
	for i := 0; i < connections; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := dialFrontend(t, f)

			frame, err := protocol.New(protocol.KindBreak).Encode()
			if err != nil {
				t.Errorf("error encoding frame: %v", err)
				return
			}
			if _, err := conn.Write(frame); err != nil {
				t.Errorf("error writing frame: %v", err)
				return
			}

			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				t.Errorf("error reading reply: %v", err)
				return
			}
			packet, err := protocol.Decode([]byte(line[:len(line)-1]))
			if err != nil {
				t.Errorf("error decoding reply: %v", err)
				return
			}
			if packet.Kind != protocol.KindBreak {
				t.Errorf("unexpected reply kind %q", packet.Kind)
			}
		}()
	}
	wg.Wait()
}

func TestFrontendDisconnectsOnProtocolViolation(t *testing.T) {
	f, backend := startTestFrontend(t, 10)
	conn := dialFrontend(t, f)

	frame, err := protocol.New("bad").Encode()
	if err != nil {
		t.Fatalf("error encoding frame: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("error writing frame: %v", err)
	}

	// The violator gets the illegal-action shortcut before eviction.
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("error reading reply: %v", err)
	}
	packet, err := protocol.Decode([]byte(line[:len(line)-1]))
	if err != nil {
		t.Fatalf("error decoding reply: %v", err)
	}
	if packet.Kind != protocol.KindIllegalAction {
		t.Errorf("expected illegal-action, got %q", packet.Kind)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		backend.mu.Lock()
		evicted := len(backend.disconnected) > 0
		backend.mu.Unlock()
		if evicted {
			if f.Registry.Len() != 0 {
				t.Errorf("expected empty registry after eviction, got %d", f.Registry.Len())
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("liveness sweep never evicted the flagged session")
}

func TestFrontendRejectsWhenFull(t *testing.T) {
	f, _ := startTestFrontend(t, 1)

	first := dialFrontend(t, f)
	frame, _ := protocol.New(protocol.KindBreak).Encode()
	if _, err := first.Write(frame); err != nil {
		t.Fatalf("error writing frame: %v", err)
	}
	if _, err := bufio.NewReader(first).ReadString('\n'); err != nil {
		t.Fatalf("error reading reply: %v", err)
	}

	second := dialFrontend(t, f)
	line, err := bufio.NewReader(second).ReadString('\n')
	if err != nil {
		t.Fatalf("error reading rejection: %v", err)
	}
	packet, err := protocol.Decode([]byte(line[:len(line)-1]))
	if err != nil {
		t.Fatalf("error decoding rejection: %v", err)
	}
	var details protocol.LoginDetails
	if err := packet.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling rejection: %v", err)
	}
	if details.Response != protocol.ResponseServerFull {
		t.Errorf("expected server-full response, got %d", details.Response)
	}
}
