// internal/gateway/sessions.go
package gateway

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Format is a client's preferred outbound encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatText    Format = "text"
	FormatOSCList Format = "osc-list"
)

// ParseFormat maps a wire string to a Format.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, true
	case FormatText:
		return FormatText, true
	case FormatOSCList:
		return FormatOSCList, true
	}
	return "", false
}

// ClientSession is one known network peer. The key is ip:returnPort, so
// all traffic from one host folds into one session regardless of the
// ephemeral source ports its commands arrive from.
type ClientSession struct {
	Key           string
	IP            string
	ReturnPort    int
	Format        Format
	Subscriptions map[string]struct{}
	LastSeen      time.Time
	TaskID        string // active monitor task, empty if none
}

// Subscribed reports whether the session should receive a topic'd
// broadcast. An empty subscription set receives everything.
func (c ClientSession) Subscribed(topic string) bool {
	if topic == "" || len(c.Subscriptions) == 0 {
		return true
	}
	_, ok := c.Subscriptions[topic]
	return ok
}

// SessionKey builds the registry key for a peer.
func SessionKey(ip string, returnPort int) string {
	return fmt.Sprintf("%s:%d", ip, returnPort)
}

// Registry tracks client sessions. All mutation goes through its lock;
// snapshots hand out copies so the sender worker, the event path and
// command handlers never share live maps.
type Registry struct {
	mu            sync.Mutex
	clients       map[string]*ClientSession
	expiry        time.Duration
	defaultFormat Format
}

// NewRegistry creates an empty registry.
func NewRegistry(expiry time.Duration, defaultFormat Format) *Registry {
	if expiry <= 0 {
		expiry = 300 * time.Second
	}
	if defaultFormat == "" {
		defaultFormat = FormatText
	}
	return &Registry{
		clients:       make(map[string]*ClientSession),
		expiry:        expiry,
		defaultFormat: defaultFormat,
	}
}

// Touch records activity from a peer, creating the session on first
// contact. Returns a copy of the current state.
func (r *Registry) Touch(ip string, returnPort int) ClientSession {
	key := SessionKey(ip, returnPort)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[key]
	if !ok {
		c = &ClientSession{
			Key:        key,
			IP:         ip,
			ReturnPort: returnPort,
			Format:     r.defaultFormat,
		}
		r.clients[key] = c
	}
	c.LastSeen = time.Now()
	return copySession(c)
}

// TouchSend refreshes LastSeen after a successful outbound send.
// Unknown keys are ignored.
func (r *Registry) TouchSend(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		c.LastSeen = time.Now()
	}
}

// Get returns a copy of the session for key.
func (r *Registry) Get(key string) (ClientSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[key]
	if !ok {
		return ClientSession{}, false
	}
	return copySession(c), true
}

// SetFormat stores the peer's format preference.
func (r *Registry) SetFormat(key string, f Format) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[key]
	if !ok {
		return false
	}
	c.Format = f
	return true
}

// Subscribe adds a topic to the peer's subscription set.
func (r *Registry) Subscribe(key, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[key]
	if !ok {
		return false
	}
	if c.Subscriptions == nil {
		c.Subscriptions = make(map[string]struct{})
	}
	c.Subscriptions[topic] = struct{}{}
	return true
}

// Unsubscribe removes a topic; an empty topic clears the whole set.
func (r *Registry) Unsubscribe(key, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[key]
	if !ok {
		return false
	}
	if topic == "" {
		c.Subscriptions = nil
		return true
	}
	delete(c.Subscriptions, topic)
	return true
}

// SetTask associates a monitor task id with the session. Empty clears.
func (r *Registry) SetTask(key, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		c.TaskID = taskID
	}
}

// Remove drops the session unconditionally. Used when a send reports
// the peer unreachable.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, key)
}

// Purge evicts sessions idle past the expiry window and returns how
// many were dropped.
func (r *Registry) Purge(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for key, c := range r.clients {
		if now.Sub(c.LastSeen) > r.expiry {
			delete(r.clients, key)
			dropped++
		}
	}
	return dropped
}

// Snapshot returns copies of all sessions for iteration outside the lock.
func (r *Registry) Snapshot() []ClientSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ClientSession, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, copySession(c))
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func copySession(c *ClientSession) ClientSession {
	out := *c
	if c.Subscriptions != nil {
		out.Subscriptions = make(map[string]struct{}, len(c.Subscriptions))
		for topic := range c.Subscriptions {
			out.Subscriptions[topic] = struct{}{}
		}
	}
	return out
}
