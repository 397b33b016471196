package client

import (
	"net"
	"testing"
)

func newTestClient(t *testing.T, username string) *Client {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	c := NewClient(serverSide)
	if username != "" {
		c.SetIdentity("uid-"+username, username, false, false, "", nil, nil)
	}
	return c
}

func TestRegistryCapacity(t *testing.T) {
	registry := NewRegistry(2)

	a := newTestClient(t, "a")
	b := newTestClient(t, "b")
	c := newTestClient(t, "c")

	if !registry.Add(a) || !registry.Add(b) {
		t.Fatal("expected adds below capacity to succeed")
	}
	if registry.Add(c) {
		t.Error("expected add at capacity to be refused")
	}
	if registry.Len() != 2 {
		t.Errorf("expected 2 registered sessions, got %d", registry.Len())
	}

	registry.Remove(a)
	if !registry.Add(c) {
		t.Error("expected add to succeed after a removal")
	}
}

func TestRegistryFindByUsername(t *testing.T) {
	registry := NewRegistry(10)
	ada := newTestClient(t, "ada")
	registry.Add(ada)
	registry.Add(newTestClient(t, ""))

	if got := registry.FindByUsername("ada"); got != ada {
		t.Errorf("expected to find ada, got %v", got)
	}
	if got := registry.FindByUsername("nobody"); got != nil {
		t.Errorf("expected nil for unknown username, got %v", got)
	}
}

func TestRegistryPairing(t *testing.T) {
	registry := NewRegistry(10)
	host := newTestClient(t, "host")
	visitor := newTestClient(t, "visitor")
	third := newTestClient(t, "third")
	for _, c := range []*Client{host, visitor, third} {
		registry.Add(c)
	}

	if !registry.Pair(host, visitor) {
		t.Fatal("expected pairing to succeed")
	}
	// Pairing is symmetric.
	if registry.PeerOf(host) != visitor || registry.PeerOf(visitor) != host {
		t.Error("expected both sides to see each other as peers")
	}
	if registry.Pair(third, visitor) {
		t.Error("expected pairing against a busy client to fail")
	}

	if peer := registry.Unpair(visitor); peer != host {
		t.Errorf("expected unpair to return the former peer, got %v", peer)
	}
	if registry.PeerOf(host) != nil || registry.PeerOf(visitor) != nil {
		t.Error("expected both sides to be unpaired")
	}
}

func TestRegistryRemoveReturnsPeer(t *testing.T) {
	registry := NewRegistry(10)
	host := newTestClient(t, "host")
	visitor := newTestClient(t, "visitor")
	registry.Add(host)
	registry.Add(visitor)
	registry.Pair(host, visitor)

	if peer := registry.Remove(visitor); peer != host {
		t.Errorf("expected removal to surface the abandoned peer, got %v", peer)
	}
	if registry.PeerOf(host) != nil {
		t.Error("expected the surviving side to be unpaired")
	}
}
