package game

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cairnway/cairnway/internal/core/client"
	"github.com/cairnway/cairnway/internal/protocol"
)

// chatBurst is how many messages a session may send back to back before
// the per-second rate limit applies.
const chatBurst = 5

const consoleName = "CONSOLE"

// ChatManager broadcasts chat lines and services the slash commands every
// player can use.
type ChatManager struct {
	*deps
	printer *message.Printer
}

func NewChatManager(d *deps) *ChatManager {
	return &ChatManager{
		deps:    d,
		printer: message.NewPrinter(language.English),
	}
}

func (m *ChatManager) HandlePacket(c *client.Client, packet protocol.Packet) error {
	var messages protocol.ChatMessages
	if err := packet.Payload(&messages); err != nil {
		return fmt.Errorf("malformed chat payload: %w", err)
	}
	if len(messages.Messages) == 0 {
		return fmt.Errorf("empty chat packet from %s", c.Username())
	}

	line := strings.TrimSpace(messages.Messages[0])
	if line == "" {
		return nil
	}
	if !c.ChatLimiter.Allow() {
		m.ConsoleReply(c, "You are sending messages too quickly.")
		return nil
	}

	if strings.HasPrefix(line, "/") {
		m.runCommand(c, line)
		return nil
	}

	m.logger.Infof("[CHAT] %s: %s", c.Username(), line)
	m.BroadcastMessage(c.Username(), line, userColor(c))
	return nil
}

func (m *ChatManager) runCommand(c *client.Client, line string) {
	switch strings.Fields(line)[0] {
	case "/help":
		m.ConsoleReply(c, "Available commands: /help, /ping, /dc, /sv")
	case "/ping":
		m.ConsoleReply(c, m.printer.Sprintf("%d player(s) online.", m.registry.Len()))
	case "/dc":
		m.ConsoleReply(c, "Disconnecting. Your game will be saved.")
		_ = c.Send(protocol.Make(protocol.KindCommand, &protocol.CommandDetails{Type: protocol.CommandDisconnect}))
	case "/sv":
		_ = c.Send(protocol.Make(protocol.KindCommand, &protocol.CommandDetails{Type: protocol.CommandForceSave}))
	default:
		m.ConsoleReply(c, "Unknown command. Try /help.")
	}
}

// BroadcastMessage fans one chat line out to every logged-in session,
// including the sender, so everyone renders the same transcript.
func (m *ChatManager) BroadcastMessage(username, text string, color protocol.MessageColor) {
	packet := protocol.Make(protocol.KindChat, &protocol.ChatMessages{
		Usernames:     []string{username},
		Messages:      []string{text},
		UserColors:    []protocol.MessageColor{color},
		MessageColors: []protocol.MessageColor{protocol.ColorNormal},
	})
	for _, peer := range m.registry.All() {
		if peer.LoggedIn() {
			_ = peer.Send(packet)
		}
	}
}

// BroadcastSystem announces a server-originated line, such as joins and
// leaves, to everyone.
func (m *ChatManager) BroadcastSystem(text string) {
	m.BroadcastMessage(consoleName, text, protocol.ColorConsole)
}

// ConsoleReply answers just the one session in console color.
func (m *ChatManager) ConsoleReply(c *client.Client, text string) {
	_ = c.Send(protocol.Make(protocol.KindChat, &protocol.ChatMessages{
		Usernames:     []string{consoleName},
		Messages:      []string{text},
		UserColors:    []protocol.MessageColor{protocol.ColorConsole},
		MessageColors: []protocol.MessageColor{protocol.ColorConsole},
	}))
}

func userColor(c *client.Client) protocol.MessageColor {
	if c.IsAdmin() {
		return protocol.ColorAdmin
	}
	return protocol.ColorNormal
}
