package game

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Whitelist is an operator-maintained list of usernames allowed to log in.
// A missing file or a disabled list admits everyone.
type Whitelist struct {
	mu      sync.RWMutex
	path    string
	Enabled bool     `yaml:"enabled"`
	Users   []string `yaml:"users"`
}

func LoadWhitelist(path string) (*Whitelist, error) {
	w := &Whitelist{path: path}
	if path == "" {
		return w, nil
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading whitelist %s: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, w); err != nil {
		return nil, fmt.Errorf("parsing whitelist %s: %w", path, err)
	}
	return w, nil
}

func (w *Whitelist) Allowed(username string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.Enabled {
		return true
	}
	for _, user := range w.Users {
		if strings.EqualFold(user, username) {
			return true
		}
	}
	return false
}
