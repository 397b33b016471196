package game

import (
	"encoding/base64"
	"testing"

	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

func TestMapRequestForOfflineOwner(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")
	seedSettlement(t, server, "200", "ghost")

	mapPayload := []byte("serialized ghost map")
	if err := data.UpsertMap(db, &data.MapRecord{Tile: "200", Owner: "ghost", Data: compress(mapPayload)}); err != nil {
		t.Fatalf("error seeding map: %v", err)
	}

	for _, kind := range []string{protocol.KindOfflineVisit, protocol.KindSpy, protocol.KindRaid} {
		adaRec.reset()
		handle(t, server, ada, protocol.Make(kind, &protocol.MapRequestDetails{
			Step: protocol.MapRequest,
			Tile: "200",
		}))

		reply := adaRec.lastOfKind(t, kind)
		var details protocol.MapRequestDetails
		if err := reply.Payload(&details); err != nil {
			t.Fatalf("error unmarshaling %s reply: %v", kind, err)
		}
		if details.Step != protocol.MapRequest {
			t.Fatalf("expected %s grant, got step %d", kind, details.Step)
		}
		decoded, err := base64.StdEncoding.DecodeString(details.MapData)
		if err != nil {
			t.Fatalf("error decoding map data: %v", err)
		}
		if string(decoded) != string(mapPayload) {
			t.Errorf("map payload did not survive the round trip for %s", kind)
		}
	}
}

func TestMapRequestDeniedWhileOwnerOnline(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")
	brin, _ := login(t, server, db, registry, "brin")

	handle(t, server, brin, protocol.Make(protocol.KindSettlement, &protocol.SettlementDetails{
		Step: protocol.SettlementAdd, Tile: "200",
	}))
	if err := data.UpsertMap(db, &data.MapRecord{Tile: "200", Owner: "brin", Data: compress([]byte("map"))}); err != nil {
		t.Fatalf("error seeding map: %v", err)
	}

	adaRec.reset()
	handle(t, server, ada, protocol.Make(protocol.KindRaid, &protocol.MapRequestDetails{
		Step: protocol.MapRequest,
		Tile: "200",
	}))

	reply := adaRec.lastOfKind(t, protocol.KindRaid)
	var details protocol.MapRequestDetails
	if err := reply.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling reply: %v", err)
	}
	if details.Step != protocol.MapDeny {
		t.Errorf("expected denial while the owner is online, got step %d", details.Step)
	}
}

func TestMapRequestWithoutStoredMap(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")
	seedSettlement(t, server, "200", "ghost")

	handle(t, server, ada, protocol.Make(protocol.KindOfflineVisit, &protocol.MapRequestDetails{
		Step: protocol.MapRequest,
		Tile: "200",
	}))

	reply := adaRec.lastOfKind(t, protocol.KindOfflineVisit)
	var details protocol.MapRequestDetails
	if err := reply.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling reply: %v", err)
	}
	if details.Step != protocol.MapDeny {
		t.Errorf("expected denial with no stored map, got step %d", details.Step)
	}
}
