// Package wschat is the default Capturer implementation: a websocket client
// that appends every received text frame as a <d> element to an in-memory
// buffer, flushed to disk as a minimal danmaku XML document on Save. Most
// live-chat protocols this supervisor's site adapters might eventually wrap
// are websocket-framed, so this is a reasonable generic default rather than
// a concrete protocol implementation (the protocol itself is out of scope,
// §1).
package wschat

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamkeep/streamkeep/internal/chatcapture"
	"github.com/streamkeep/streamkeep/internal/logging"
)

type danmakuDoc struct {
	XMLName xml.Name `xml:"i"`
	Entries []entry  `xml:"d"`
}

type entry struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

// Capturer connects to a chat-relay websocket endpoint and buffers received
// messages until Save is called.
type Capturer struct {
	endpoint string
	log      *logging.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	entries []entry
}

var _ chatcapture.Capturer = (*Capturer)(nil)

// New builds a Capturer dialing endpoint (a ws:// or wss:// chat-relay URL)
// once Start is called.
func New(endpoint string, log *logging.Logger) *Capturer {
	if log == nil {
		log = logging.Global()
	}
	return &Capturer{endpoint: endpoint, log: log.WithComponent("wschat")}
}

func (c *Capturer) Start(ctx context.Context, room string) error {
	if c.endpoint == "" {
		return nil // chat capture enabled with no relay configured: a no-op
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("wschat: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("wschat: dial %s: %w", u.Redacted(), err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(readCtx, conn)
	return nil
}

func (c *Capturer) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.log.Warnf("chat relay read error: %v", err)
			return
		}
		c.mu.Lock()
		c.entries = append(c.entries, entry{
			P:    fmt.Sprintf("%d", time.Now().UnixMilli()),
			Text: string(msg),
		})
		c.mu.Unlock()
	}
}

func (c *Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Save writes whatever was buffered to path as a small XML document, and
// reports whether any entries were written (the recording session only
// keeps a `.xml` sibling when this is true, §4.7 step 6).
func (c *Capturer) Save(path string) (bool, error) {
	c.mu.Lock()
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	if len(entries) == 0 {
		return false, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("wschat: create %s: %w", path, err)
	}
	defer f.Close()

	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(danmakuDoc{Entries: entries}); err != nil {
		return false, fmt.Errorf("wschat: encode %s: %w", path, err)
	}
	return true, nil
}
