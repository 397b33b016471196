package client

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/cairnway/cairnway/internal/protocol"
)

// Many server events (broadcasts, relays, ticker pushes) can target the
// same session at once. Every frame on the wire must still be a single
// well-formed line.
func TestSendConcurrentFraming(t *testing.T) {
	const senders = 20
	const perSender = 50

	serverSide, clientSide := net.Pipe()
	c := NewClient(serverSide)

	frames := make(chan string, senders*perSender)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		scanner := bufio.NewScanner(clientSide)
		for scanner.Scan() {
			frames <- scanner.Text()
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := c.Send(protocol.Make(protocol.KindChat, &protocol.ChatMessages{
					Usernames: []string{"ada"},
					Messages:  []string{"hello"},
				})); err != nil {
					t.Errorf("unexpected send error: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()
	_ = c.Close()
	<-readerDone
	close(frames)

	count := 0
	for frame := range frames {
		count++
		packet, err := protocol.Decode([]byte(frame))
		if err != nil {
			t.Fatalf("received corrupt frame %q: %v", frame, err)
		}
		if packet.Kind != protocol.KindChat {
			t.Fatalf("unexpected packet kind %q", packet.Kind)
		}
	}
	if count != senders*perSender {
		t.Errorf("expected %d frames, got %d", senders*perSender, count)
	}
}

func TestSendFailureFlagsDisconnect(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	c := NewClient(serverSide)
	_ = clientSide.Close()
	_ = serverSide.Close()

	if err := c.Send(protocol.New(protocol.KindBreak)); err == nil {
		t.Fatal("expected send on closed connection to fail")
	}
	if !c.Disconnecting() {
		t.Error("expected failed send to flag the session for disconnect")
	}
}

func TestSafeZoneTransitions(t *testing.T) {
	serverSide, _ := net.Pipe()
	defer serverSide.Close()
	c := NewClient(serverSide)

	if !c.EnterSafeZone() {
		t.Fatal("expected first entry to succeed")
	}
	if c.EnterSafeZone() {
		t.Error("expected re-entry to fail while locked")
	}
	if !c.InSafeZone() {
		t.Error("expected client to report being in its safe zone")
	}
	if !c.LeaveSafeZone() {
		t.Fatal("expected leave to succeed")
	}
	if c.LeaveSafeZone() {
		t.Error("expected second leave to be a no-op")
	}
}

func TestSetIdentity(t *testing.T) {
	serverSide, _ := net.Pipe()
	defer serverSide.Close()
	c := NewClient(serverSide)

	if c.LoggedIn() {
		t.Fatal("expected fresh session to not be logged in")
	}

	c.SetIdentity("uid", "ada", true, false, "The Cairn", []string{"brin"}, nil)
	if !c.LoggedIn() || c.Username() != "ada" || !c.IsAdmin() {
		t.Errorf("identity not applied: username=%q admin=%t", c.Username(), c.IsAdmin())
	}
	if !c.HasFaction() || c.FactionName() != "The Cairn" {
		t.Errorf("faction not applied: %q", c.FactionName())
	}
	if allies := c.Allies(); len(allies) != 1 || allies[0] != "brin" {
		t.Errorf("allies not applied: %v", allies)
	}
}
