package client

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/cairnway/cairnway/internal/protocol"
)

// Client represents a player connected through the game client mod. One
// Client exists per live TCP session; identity fields are populated by the
// login flow.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	ipAddr string

	// Serializes writers so interleaved sends from multiple triggering
	// events never corrupt the wire stream.
	writeMu sync.Mutex

	mu          sync.RWMutex
	uid         string
	username    string
	admin       bool
	banned      bool
	factionName string
	allies      []string
	enemies     []string
	inSafeZone  bool

	disconnect atomic.Bool

	// ChatLimiter throttles inbound chat; set by the backend on accept.
	ChatLimiter *rate.Limiter
}

func NewClient(conn net.Conn) *Client {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		ipAddr: addr,
	}
}

func (c *Client) IPAddr() string { return c.ipAddr }

// ReadPacket blocks until the next newline-delimited frame arrives and
// decodes it. It only returns once the client has sent a full frame or the
// connection has failed.
func (c *Client) ReadPacket() (protocol.Packet, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.Decode([]byte(strings.TrimRight(line, "\r\n")))
}

// Send encodes the packet and writes it as a single frame. Only one send
// proceeds at a time per client; concurrent callers contend on the client's
// write gate, not on the whole server. A write failure flags the session for
// disconnect instead of propagating as a fatal error.
func (c *Client) Send(packet protocol.Packet) error {
	frame, err := packet.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(frame); err != nil {
		c.FlagDisconnect()
		return err
	}
	return nil
}

// Close the TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// FlagDisconnect marks the session for eviction by the liveness sweep.
func (c *Client) FlagDisconnect() { c.disconnect.Store(true) }

// Disconnecting reports whether the session has been flagged for eviction.
func (c *Client) Disconnecting() bool { return c.disconnect.Load() }

// SetIdentity loads the persisted user state onto the session after a
// successful login.
func (c *Client) SetIdentity(uid, username string, admin, banned bool, factionName string, allies, enemies []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uid = uid
	c.username = username
	c.admin = admin
	c.banned = banned
	c.factionName = factionName
	c.allies = append([]string(nil), allies...)
	c.enemies = append([]string(nil), enemies...)
}

func (c *Client) UID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// LoggedIn reports whether the session has completed the login flow.
func (c *Client) LoggedIn() bool {
	return c.Username() != ""
}

func (c *Client) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

func (c *Client) SetAdmin(admin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admin = admin
}

func (c *Client) FactionName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.factionName
}

func (c *Client) HasFaction() bool {
	return c.FactionName() != ""
}

func (c *Client) SetFaction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factionName = name
}

func (c *Client) Allies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.allies...)
}

func (c *Client) Enemies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.enemies...)
}

func (c *Client) SetRelations(allies, enemies []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allies = append([]string(nil), allies...)
	c.enemies = append([]string(nil), enemies...)
}

// EnterSafeZone marks the player as busy receiving a disruptive event.
// It returns false if the player is already locked.
func (c *Client) EnterSafeZone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inSafeZone {
		return false
	}
	c.inSafeZone = true
	return true
}

// LeaveSafeZone releases the event lock. It returns false if the player was
// not locked, which callers treat as a stale acknowledgment.
func (c *Client) LeaveSafeZone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inSafeZone {
		return false
	}
	c.inSafeZone = false
	return true
}

func (c *Client) InSafeZone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inSafeZone
}
