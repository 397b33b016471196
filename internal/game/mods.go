package game

import (
	"github.com/cairnway/cairnway/internal/core"
)

// ModChecker compares a joining client's mod list against the server's
// policy. Required mods must all be present, forbidden mods must all be
// absent, optional mods are ignored either way.
type ModChecker struct {
	required  map[string]struct{}
	forbidden map[string]struct{}
}

func NewModChecker(cfg *core.Config) *ModChecker {
	return &ModChecker{
		required:  toSet(cfg.Mods.Required),
		forbidden: toSet(cfg.Mods.Forbidden),
	}
}

// Check returns the mods that keep the client out: required ones it is
// missing and forbidden ones it is running.
func (m *ModChecker) Check(mods []string) (conflicting []string) {
	present := toSet(mods)
	for mod := range m.required {
		if _, ok := present[mod]; !ok {
			conflicting = append(conflicting, mod)
		}
	}
	for _, mod := range mods {
		if _, ok := m.forbidden[mod]; ok {
			conflicting = append(conflicting, mod)
		}
	}
	return conflicting
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
