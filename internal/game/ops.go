package game

import (
	"fmt"

	"github.com/cairnway/cairnway/internal/core/data"
	"github.com/cairnway/cairnway/internal/protocol"
)

// Operator surface, used by the HTTP admin API. These methods run on
// goroutines outside the packet dispatch path, so they only touch state
// that is safe to reach concurrently: the user table, the registry and the
// per-client send gates.

// Status reports who is online.
func (s *Server) Status() (int, []string) {
	var names []string
	for _, c := range s.deps.registry.All() {
		if c.LoggedIn() {
			names = append(names, c.Username())
		}
	}
	return len(names), names
}

// Broadcast pushes a console-colored chat line to every session.
func (s *Server) Broadcast(text string) {
	s.deps.logger.Infof("[WORLD] operator broadcast: %s", text)
	s.chat.BroadcastSystem(text)
}

// Kick disconnects a live session after telling it to save.
func (s *Server) Kick(username string) error {
	c := s.deps.registry.FindByUsername(username)
	if c == nil {
		return fmt.Errorf("%s is not online", username)
	}
	s.deps.logger.Infof("[WORLD] operator kicked %s", username)
	_ = c.Send(protocol.Make(protocol.KindCommand, &protocol.CommandDetails{Type: protocol.CommandDisconnect}))
	c.FlagDisconnect()
	return nil
}

// Ban flags the account and evicts any live session for it.
func (s *Server) Ban(username string) error {
	if err := s.setBanned(username, true); err != nil {
		return err
	}
	if c := s.deps.registry.FindByUsername(username); c != nil {
		_ = c.Send(protocol.Make(protocol.KindCommand, &protocol.CommandDetails{Type: protocol.CommandBan}))
		c.FlagDisconnect()
	}
	s.deps.logger.Infof("[WORLD] operator banned %s", username)
	return nil
}

func (s *Server) Unban(username string) error {
	s.deps.logger.Infof("[WORLD] operator unbanned %s", username)
	return s.setBanned(username, false)
}

// Op grants server admin to an account, effective immediately if online.
func (s *Server) Op(username string) error {
	return s.setAdmin(username, true, protocol.CommandOp)
}

func (s *Server) Deop(username string) error {
	return s.setAdmin(username, false, protocol.CommandDeop)
}

func (s *Server) setBanned(username string, banned bool) error {
	s.deps.userMu.Lock()
	defer s.deps.userMu.Unlock()

	user, err := data.FindUserByUsername(s.deps.db, username)
	if err != nil {
		return fmt.Errorf("loading user %s: %w", username, err)
	}
	if user == nil {
		return fmt.Errorf("no such user %s", username)
	}
	return data.UpdateUserBanned(s.deps.db, user.Username, banned)
}

func (s *Server) setAdmin(username string, admin bool, command protocol.CommandType) error {
	if err := s.writeAdminFlag(username, admin); err != nil {
		return err
	}

	if c := s.deps.registry.FindByUsername(username); c != nil {
		c.SetAdmin(admin)
		_ = c.Send(protocol.Make(protocol.KindCommand, &protocol.CommandDetails{Type: command}))
	}
	s.deps.logger.Infof("[WORLD] operator set admin=%t for %s", admin, username)
	return nil
}

func (s *Server) writeAdminFlag(username string, admin bool) error {
	s.deps.userMu.Lock()
	defer s.deps.userMu.Unlock()

	user, err := data.FindUserByUsername(s.deps.db, username)
	if err != nil {
		return fmt.Errorf("loading user %s: %w", username, err)
	}
	if user == nil {
		return fmt.Errorf("no such user %s", username)
	}
	return data.UpdateUserAdmin(s.deps.db, user.Username, admin)
}
