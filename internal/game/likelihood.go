package game

import (
	"gorm.io/gorm"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/core/data"
)

// Likelihood scores are observer-relative: the same settlement reads
// differently to an ally of its owner than to an enemy. They are computed
// at send time and never stored.
const (
	LikelihoodEnemy   = 0.0
	LikelihoodNeutral = 40.0
	LikelihoodAlly    = 75.0
	LikelihoodFaction = 100.0
)

// Scorer computes the likelihood score an observer should see for an entity
// owned by another player.
type Scorer interface {
	Score(observer *client.Client, owner string) float64
}

// RelationScorer scores from the observer's ally and enemy lists plus
// faction co-membership. Faction membership of offline owners is resolved
// through the user table.
type RelationScorer struct {
	db *gorm.DB
}

func NewRelationScorer(db *gorm.DB) *RelationScorer {
	return &RelationScorer{db: db}
}

func (s *RelationScorer) Score(observer *client.Client, owner string) float64 {
	if owner == observer.Username() {
		return LikelihoodFaction
	}
	if observer.HasFaction() && observer.FactionName() == s.ownerFaction(owner) {
		return LikelihoodFaction
	}
	for _, enemy := range observer.Enemies() {
		if enemy == owner {
			return LikelihoodEnemy
		}
	}
	for _, ally := range observer.Allies() {
		if ally == owner {
			return LikelihoodAlly
		}
	}
	return LikelihoodNeutral
}

func (s *RelationScorer) ownerFaction(owner string) string {
	user, err := data.FindUserByUsername(s.db, owner)
	if err != nil || user == nil {
		return ""
	}
	return user.FactionName
}
