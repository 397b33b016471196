package game

import (
	"testing"

	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

func TestRelationScorer(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, _ := login(t, server, db, registry, "ada")

	scorer := NewRelationScorer(db)
	if got := scorer.Score(ada, "ada"); got != LikelihoodFaction {
		t.Errorf("expected own entities to score %f, got %f", LikelihoodFaction, got)
	}
	if got := scorer.Score(ada, "stranger"); got != LikelihoodNeutral {
		t.Errorf("expected strangers to score %f, got %f", LikelihoodNeutral, got)
	}

	ada.SetRelations([]string{"friend"}, []string{"rival"})
	if got := scorer.Score(ada, "friend"); got != LikelihoodAlly {
		t.Errorf("expected allies to score %f, got %f", LikelihoodAlly, got)
	}
	if got := scorer.Score(ada, "rival"); got != LikelihoodEnemy {
		t.Errorf("expected enemies to score %f, got %f", LikelihoodEnemy, got)
	}
}

func TestRelationScorerFactionCoMembership(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, _ := login(t, server, db, registry, "ada")
	_ = server
	_ = registry

	brin := &data.User{UID: "uid-brin", Username: "brin", Password: "x", FactionName: "The Cairn"}
	if err := data.CreateUser(db, brin); err != nil {
		t.Fatalf("error seeding user: %v", err)
	}
	ada.SetFaction("The Cairn")

	if got := NewRelationScorer(db).Score(ada, "brin"); got != LikelihoodFaction {
		t.Errorf("expected faction mates to score %f, got %f", LikelihoodFaction, got)
	}
}

func TestRelationChangeUpdatesScores(t *testing.T) {
	server, db, registry := setUpServer(t)
	ada, adaRec := login(t, server, db, registry, "ada")
	seedSettlement(t, server, "200", "ghost")

	handle(t, server, ada, protocol.Make(protocol.KindLikelihood, &protocol.RelationDetails{
		Target:   "ghost",
		Relation: protocol.RelationEnemy,
	}))

	pushed := adaRec.lastOfKind(t, protocol.KindLikelihood)
	var values protocol.LikelihoodValues
	if err := pushed.Payload(&values); err != nil {
		t.Fatalf("error unmarshaling push: %v", err)
	}
	if len(values.Tiles) != 1 || values.Tiles[0] != "200" {
		t.Fatalf("unexpected tiles %v", values.Tiles)
	}
	if values.Values[0] != LikelihoodEnemy {
		t.Errorf("expected enemy score, got %f", values.Values[0])
	}

	// The relation survives in the user record.
	user, err := data.FindUserByUsername(db, "ada")
	if err != nil || user == nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(user.EnemyPlayers) != 1 || user.EnemyPlayers[0] != "ghost" {
		t.Errorf("expected persisted enemy list, got %v", user.EnemyPlayers)
	}

	// Flipping back to neutral clears it.
	handle(t, server, ada, protocol.Make(protocol.KindLikelihood, &protocol.RelationDetails{
		Target:   "ghost",
		Relation: protocol.RelationNeutral,
	}))
	user, _ = data.FindUserByUsername(db, "ada")
	if len(user.EnemyPlayers) != 0 {
		t.Errorf("expected enemy list to be cleared, got %v", user.EnemyPlayers)
	}
}
