package game

import (
	"testing"

	"github.com/cairnway/cairnway/internal/protocol"
)

func TestVisitFlow(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")
	brin, brinRec := login(t, server, db, registry, "brin")

	handle(t, server, ada, protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{
		Step: protocol.SettlementAdd, Tile: "100",
	}))
	handle(t, server, brin, protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{
		Step: protocol.SettlementAdd, Tile: "200",
	}))

	handle(t, server, ada, protocol.Make(protocol.KindVisit, &protocol.VisitDetails{
		Step:       protocol.VisitRequest,
		FromTile:   "100",
		TargetTile: "200",
	}))
	request := brinRec.lastOfKind(t, protocol.KindVisit)
	var details protocol.VisitDetails
	if err := request.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling request: %v", err)
	}
	if details.Visitor != "ada" {
		t.Fatalf("expected visitor name to be attached, got %+v", details)
	}

	handle(t, server, brin, protocol.Make(protocol.KindVisit, &protocol.VisitDetails{
		Step:    protocol.VisitAccept,
		Visitor: "ada",
	}))
	adaRec.lastOfKind(t, protocol.KindVisit)
	if registry.PeerOf(ada) != brin {
		t.Fatal("expected the two sessions to be paired")
	}

	// Actions flow through the pairing in both directions.
	handle(t, server, ada, protocol.Make(protocol.KindVisit, &protocol.VisitDetails{
		Step:    protocol.VisitAction,
		Actions: []string{"wander"},
	}))
	action := brinRec.lastOfKind(t, protocol.KindVisit)
	if err := action.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling action: %v", err)
	}
	if details.Step != protocol.VisitAction || details.Actions[0] != "wander" {
		t.Errorf("unexpected relayed action %+v", details)
	}

	adaRec.reset()
	handle(t, server, brin, protocol.Make(protocol.KindVisit, &protocol.VisitDetails{
		Step: protocol.VisitStop,
	}))
	stop := adaRec.lastOfKind(t, protocol.KindVisit)
	if err := stop.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling stop: %v", err)
	}
	if details.Step != protocol.VisitStop {
		t.Errorf("expected stop to reach the visitor, got step %d", details.Step)
	}
	if registry.PeerOf(ada) != nil || registry.PeerOf(brin) != nil {
		t.Error("expected the pairing to be torn down")
	}
}

func TestVisitOfflineHostUnavailable(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")

	handle(t, server, ada, protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{
		Step: protocol.SettlementAdd, Tile: "100",
	}))
	seedSettlement(t, server, "200", "ghost")

	handle(t, server, ada, protocol.Make(protocol.KindVisit, &protocol.VisitDetails{
		Step:       protocol.VisitRequest,
		FromTile:   "100",
		TargetTile: "200",
	}))

	reply := adaRec.lastOfKind(t, protocol.KindVisit)
	var details protocol.VisitDetails
	if err := reply.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling reply: %v", err)
	}
	if details.Step != protocol.VisitUnavailable {
		t.Errorf("expected unavailable reply, got step %d", details.Step)
	}
}

func TestDisconnectNotifiesVisitPeer(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")
	brin, _ := login(t, server, db, registry, "brin")

	if !registry.Pair(ada, brin) {
		t.Fatal("expected pairing to succeed")
	}

	peer := registry.Remove(brin)
	server.OnDisconnect(brin, peer)

	stop := adaRec.lastOfKind(t, protocol.KindVisit)
	var details protocol.VisitDetails
	if err := stop.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling stop: %v", err)
	}
	if details.Step != protocol.VisitStop {
		t.Errorf("expected stop notification, got step %d", details.Step)
	}
}
