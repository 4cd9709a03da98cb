// internal/gateway/server.go
package gateway

import (
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loveourearth/JHS-EncoderReader/internal/syserr"
)

// Config is the server's runtime configuration.
type Config struct {
	Host             string
	Port             int // command listen port
	ReturnPort       int // every reply and broadcast goes here
	DefaultFormat    Format
	ClientExpiry     time.Duration
	Heartbeat        time.Duration
	HeartbeatEnabled bool
	QueueSize        int
	DeviceName       string
}

// Handler consumes one decoded inbound datagram.
type Handler interface {
	Handle(client ClientSession, address string, args []string)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(client ClientSession, address string, args []string)

func (f HandlerFunc) Handle(client ClientSession, address string, args []string) {
	f(client, address, args)
}

// Stats is a snapshot of the server counters.
type Stats struct {
	PacketsIn  uint64
	PacketsOut uint64
	SendErrors uint64
	Dropped    uint64
	Clients    int
	Uptime     time.Duration
}

type outbound struct {
	key     string
	addr    *net.UDPAddr
	payload []byte
}

// heartbeatOrder fixes the positional-format field sequence for the
// heartbeat broadcast.
var heartbeatOrder = []string{"timestamp", "device", "uptime", "connected", "monitoring", "clients"}

// cleanupInterval paces the periodic registry purge; broadcasts also
// purge lazily.
const cleanupInterval = 60 * time.Second

// Server is the UDP command listener and broadcast sender. Inbound
// datagrams are handed to the Handler; every outbound message runs
// through one bounded queue drained by a single sender worker, and is
// addressed to the peer's fixed return port, never the source port a
// command arrived from.
type Server struct {
	cfg      Config
	registry *Registry
	handler  Handler

	// statusFields supplies extra heartbeat fields (connected,
	// monitoring). Set before Start.
	statusFields func() map[string]interface{}

	conn    *net.UDPConn
	queue   chan outbound
	started time.Time

	packetsIn  uint64
	packetsOut uint64
	sendErrors uint64
	dropped    uint64

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
	senderStop    chan struct{}
	senderDone    chan struct{}
	cleanupStop   chan struct{}
	cleanupDone   chan struct{}
	recvDone      chan struct{}

	hbOnce     sync.Once
	senderOnce sync.Once
	closeOnce  sync.Once
}

// NewServer builds the server. Zero config values select defaults;
// listen port 0 binds an ephemeral port.
func NewServer(cfg Config, handler Handler) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, syserr.New(syserr.KindConfig, "gateway: listen port %d out of range", cfg.Port)
	}
	if cfg.ReturnPort < 1 || cfg.ReturnPort > 65535 {
		return nil, syserr.New(syserr.KindConfig, "gateway: return port %d out of range", cfg.ReturnPort)
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = FormatText
	}
	if cfg.ClientExpiry <= 0 {
		cfg.ClientExpiry = 300 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 180 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.ClientExpiry, cfg.DefaultFormat),
		handler:  handler,

		queue:         make(chan outbound, cfg.QueueSize),
		heartbeatStop: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
		senderStop:    make(chan struct{}),
		senderDone:    make(chan struct{}),
		cleanupStop:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
		recvDone:      make(chan struct{}),
	}, nil
}

// Registry exposes the session registry to the command layer.
func (s *Server) Registry() *Registry {
	return s.registry
}

// SetStatusFields installs the heartbeat status hook. Must be called
// before Start.
func (s *Server) SetStatusFields(fn func() map[string]interface{}) {
	s.statusFields = fn
}

// SetHandler installs the inbound datagram handler. Must be called
// before Start; it exists so the handler can be built around the server
// it answers through.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// ReturnPort returns the configured fixed reply port.
func (s *Server) ReturnPort() int {
	return s.cfg.ReturnPort
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Start binds the socket and launches the receive loop, the sender
// worker, the cleanup ticker and the heartbeat.
func (s *Server) Start() error {
	var ip net.IP
	if s.cfg.Host != "" {
		ip = net.ParseIP(s.cfg.Host)
		if ip == nil {
			return syserr.New(syserr.KindConfig, "gateway: bad listen host %q", s.cfg.Host)
		}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: s.cfg.Port})
	if err != nil {
		return syserr.Wrap(syserr.KindNetwork, err, "listen udp %s:%d", s.cfg.Host, s.cfg.Port)
	}
	s.conn = conn
	s.started = time.Now()

	go s.recvLoop()
	go s.senderLoop()
	go s.cleanupLoop()
	if s.cfg.HeartbeatEnabled {
		go s.heartbeatLoop()
	} else {
		close(s.heartbeatDone)
	}

	log.Printf("gateway: listening on %s, replies to port %d", conn.LocalAddr(), s.cfg.ReturnPort)
	return nil
}

// StopHeartbeat stops the heartbeat worker. First step of the shutdown
// order.
func (s *Server) StopHeartbeat() {
	s.hbOnce.Do(func() {
		close(s.heartbeatStop)
		<-s.heartbeatDone
	})
}

// StopSender stops the outbound worker. Queued messages past this point
// are dropped. Second step of the shutdown order.
func (s *Server) StopSender() {
	s.senderOnce.Do(func() {
		close(s.senderStop)
		<-s.senderDone
	})
}

// Close stops the cleanup worker, closes the socket and joins the
// receive loop. Last step of the shutdown order.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.cleanupStop)
		<-s.cleanupDone
		if s.conn != nil {
			err = s.conn.Close()
			<-s.recvDone
		}
	})
	return err
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		PacketsIn:  atomic.LoadUint64(&s.packetsIn),
		PacketsOut: atomic.LoadUint64(&s.packetsOut),
		SendErrors: atomic.LoadUint64(&s.sendErrors),
		Dropped:    atomic.LoadUint64(&s.dropped),
		Clients:    s.registry.Len(),
		Uptime:     time.Since(s.started),
	}
}

// ---- outbound path ----

// SendTo renders and enqueues one message for a client. The send is
// asynchronous; a full queue drops the message and counts it rather
// than blocking the caller.
func (s *Server) SendTo(client ClientSession, address string, fields map[string]interface{}, order []string) error {
	payload, err := Render(client.Format, address, fields, order)
	if err != nil {
		return err
	}

	ip := net.ParseIP(client.IP)
	if ip == nil {
		return syserr.New(syserr.KindNetwork, "gateway: bad client ip %q", client.IP)
	}

	msg := outbound{
		key:     client.Key,
		addr:    &net.UDPAddr{IP: ip, Port: client.ReturnPort},
		payload: payload,
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		atomic.AddUint64(&s.dropped, 1)
		return syserr.New(syserr.KindNetwork, "gateway: queue full, dropped %s for %s", address, client.Key)
	}
}

// Broadcast sends one message to every live session subscribed to
// topic, honoring per-client formats. Expired sessions are purged
// first. Returns the number of clients the message was queued for.
func (s *Server) Broadcast(address string, fields map[string]interface{}, order []string, topic string) int {
	if n := s.registry.Purge(time.Now()); n > 0 {
		log.Printf("gateway: purged %d expired clients", n)
	}

	reached := 0
	for _, client := range s.registry.Snapshot() {
		if !client.Subscribed(topic) {
			continue
		}
		if err := s.SendTo(client, address, fields, order); err != nil {
			log.Printf("gateway: broadcast %s to %s: %v", address, client.Key, err)
			continue
		}
		reached++
	}
	return reached
}

func (s *Server) senderLoop() {
	defer close(s.senderDone)

	for {
		select {
		case <-s.senderStop:
			return
		case m := <-s.queue:
			if _, err := s.conn.WriteToUDP(m.payload, m.addr); err != nil {
				atomic.AddUint64(&s.sendErrors, 1)
				log.Printf("gateway: send to %s failed, dropping client: %v", m.key, err)
				s.registry.Remove(m.key)
				continue
			}
			atomic.AddUint64(&s.packetsOut, 1)
			s.registry.TouchSend(m.key)
		}
	}
}

func (s *Server) heartbeatLoop() {
	defer close(s.heartbeatDone)

	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.heartbeatStop:
			return
		case <-ticker.C:
			fields := map[string]interface{}{
				"timestamp": time.Now().UnixMilli(),
				"device":    s.cfg.DeviceName,
				"uptime":    int64(time.Since(s.started).Seconds()),
				"clients":   s.registry.Len(),
			}
			if s.statusFields != nil {
				for k, v := range s.statusFields() {
					fields[k] = v
				}
			}
			s.Broadcast("/system/heartbeat", fields, heartbeatOrder, "")
		}
	}
}

func (s *Server) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.cleanupStop:
			return
		case <-ticker.C:
			if n := s.registry.Purge(time.Now()); n > 0 {
				log.Printf("gateway: purged %d expired clients", n)
			}
		}
	}
}

// ---- inbound path ----

func (s *Server) recvLoop() {
	defer close(s.recvDone)

	buf := make([]byte, 64*1024)
	for {
		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("gateway: read: %v", err)
			continue
		}

		atomic.AddUint64(&s.packetsIn, 1)
		data := make([]byte, n)
		copy(data, buf[:n])
		go s.handleDatagram(data, raddr)
	}
}

// handleDatagram decodes one inbound packet and hands it to the
// handler. The session is keyed by the sender ip and the configured
// return port; the ephemeral source port is not part of the identity.
func (s *Server) handleDatagram(data []byte, raddr *net.UDPAddr) {
	line := strings.TrimSpace(string(data))
	if line == "" {
		return
	}

	address, rest := splitAddress(line)
	if !strings.HasPrefix(address, "/") {
		log.Printf("gateway: %s: not a command address: %q", raddr.IP, address)
		return
	}

	client := s.registry.Touch(raddr.IP.String(), s.cfg.ReturnPort)
	if s.handler != nil {
		s.handler.Handle(client, address, splitArgs(rest))
	}
}

func splitAddress(line string) (address, rest string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// splitArgs tokenizes the argument part. A JSON object or array is one
// argument; anything else splits on whitespace.
func splitArgs(rest string) []string {
	if rest == "" {
		return nil
	}
	if rest[0] == '{' || rest[0] == '[' {
		return []string{rest}
	}
	return strings.Fields(rest)
}
