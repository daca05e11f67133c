package bedrockproxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sawolke/mcwake/config"
	"github.com/sawolke/mcwake/lifecycle"
	"github.com/sawolke/mcwake/raknet"
	"go.uber.org/zap"
)

const (
	readBufferSize     = 1500
	clientIdleTimeout  = 60 * time.Second
	cleanupSweepPeriod = 30 * time.Second
)

// client is a per-player UDP session: one dedicated backend socket so
// the kernel's own 4-tuple routing demultiplexes backend replies
// without this proxy having to track RakNet connection state itself -
// grounded on wlkek-mcbeproxy's rawUDPClientInfo per-client socket
// pattern, trimmed to the subset this listener needs (no split-packet
// reassembly, no login/XUID parsing - those stay inside the backend's
// own RakNet stack).
type client struct {
	addr       *net.UDPAddr
	backend    *net.UDPConn
	lastActive time.Time
	counted    bool
}

// Listener serves one configured Bedrock (or Bedrock-crossplay) server
// on its own external UDP port.
type Listener struct {
	cfg config.ServerConfig
	mgr *lifecycle.Manager
	log *zap.Logger

	serverGUID uint64

	mu      sync.Mutex
	clients map[string]*client
}

func NewListener(cfg config.ServerConfig, mgr *lifecycle.Manager, log *zap.Logger) *Listener {
	return &Listener{
		cfg:        cfg,
		mgr:        mgr,
		log:        log,
		serverGUID: uint64(time.Now().UnixNano()),
		clients:    make(map[string]*client),
	}
}

func (l *Listener) Serve(ctx context.Context, conn *net.UDPConn) {
	go l.cleanupLoop(ctx)

	buf := make([]byte, readBufferSize)
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			l.log.Warn("bedrock read error", zap.Error(err))
			continue
		}
		l.handleDatagram(ctx, conn, src, append([]byte(nil), buf[:n]...))
	}
}

func (l *Listener) handleDatagram(ctx context.Context, front *net.UDPConn, src *net.UDPAddr, data []byte) {
	if raknet.IsOfflineMessage(data) {
		switch data[0] {
		case raknet.IDUnconnectedPing, raknet.IDUnconnectedPingOpenConn:
			l.replyPong(front, src, data)
			return
		case raknet.IDOpenConnectionRequest1:
			// First step of a real connection attempt - the Bedrock
			// equivalent of a Java login, so it's allowed to wake the
			// backend and stand up the session (see DESIGN.md Open
			// Question 2). A conforming client waits for this
			// request's reply before ever sending request 2, so the
			// session has to exist here, not at request 2.
			go l.handleConnectRequest(ctx, front, src, data, false)
			return
		case raknet.IDOpenConnectionRequest2:
			// The session should already exist from request 1; just
			// forward and count it exactly once. Falls back to full
			// session creation if request 1 was somehow missed.
			go l.handleConnectRequest(ctx, front, src, data, true)
			return
		}
	}

	// Anything else is already-connected game traffic for a session
	// that must exist by now; if it doesn't, the client skipped the
	// handshake this proxy cares about and the datagram is dropped.
	if c := l.getClient(src); c != nil {
		c.backend.Write(data)
		l.touch(src)
	}
}

// replyPong answers an unconnected ping. When the backend is already
// RUNNING it forwards the ping and relays the real pong, mirroring
// javaproxy's proxyStatusLive; otherwise it falls back to a synthetic
// sleeping advertisement, since a ping must never itself wake the
// server.
func (l *Listener) replyPong(front *net.UDPConn, src *net.UDPAddr, data []byte) {
	if rt, ok := l.mgr.Runtime(l.cfg.ID); ok && rt.State() == lifecycle.Running {
		if l.proxyPingLive(front, src, data) {
			return
		}
	}

	echoTime := uint64(time.Now().UnixNano())
	if ping, err := raknet.ParseUnconnectedPing(data); err == nil {
		echoTime = ping.Time
	}

	adv := raknet.BuildMCPEAdvertisement(
		l.cfg.MOTD, l.cfg.FakeProtocol, l.cfg.FakeVersion,
		0, l.cfg.MaxPlayers, l.serverGUID, l.cfg.MOTD, "Survival",
		l.cfg.BedrockPort, l.cfg.BedrockPort,
	)
	pong := raknet.NewUnconnectedPong(echoTime, l.serverGUID, adv)
	front.WriteToUDP(pong, src)
}

// proxyPingLive dials the backend directly (no client session needed
// for a one-shot ping), forwards the ping verbatim and relays whatever
// pong comes back.
func (l *Listener) proxyPingLive(front *net.UDPConn, src *net.UDPAddr, data []byte) bool {
	backendAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.cfg.InternalHost, l.cfg.BedrockInternalPort))
	if err != nil {
		return false
	}
	backend, err := net.DialUDP("udp", nil, backendAddr)
	if err != nil {
		return false
	}
	defer backend.Close()

	if _, err := backend.Write(data); err != nil {
		return false
	}
	backend.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, readBufferSize)
	n, err := backend.Read(buf)
	if err != nil {
		return false
	}
	front.WriteToUDP(buf[:n], src)
	return true
}

func (l *Listener) handleConnectRequest(ctx context.Context, front *net.UDPConn, src *net.UDPAddr, data []byte, countSession bool) {
	startCtx, cancel := context.WithTimeout(ctx, l.cfg.MaxStartupWait.Duration)
	defer cancel()

	if err := l.mgr.EnsureRunning(startCtx, l.cfg.ID); err != nil {
		l.log.Warn("bedrock backend failed to start", zap.String("server_id", l.cfg.ID), zap.Error(err))
		return
	}

	c := l.getOrCreateClient(front, src)
	if c == nil {
		return
	}
	if countSession {
		l.countSessionOnce(c)
	}
	c.backend.Write(data)
}

// countSessionOnce increments the runtime's session counter at most
// once per client, guarded by the client's counted flag - request 2
// can arrive more than once for the same session.
func (l *Listener) countSessionOnce(c *client) {
	l.mu.Lock()
	already := c.counted
	c.counted = true
	l.mu.Unlock()
	if !already {
		l.mgr.IncSession(l.cfg.ID)
	}
}

func (l *Listener) getClient(src *net.UDPAddr) *client {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clients[src.String()]
}

func (l *Listener) touch(src *net.UDPAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[src.String()]; ok {
		c.lastActive = time.Now()
	}
}

func (l *Listener) getOrCreateClient(front *net.UDPConn, src *net.UDPAddr) *client {
	key := src.String()

	l.mu.Lock()
	if c, ok := l.clients[key]; ok {
		l.mu.Unlock()
		c.lastActive = time.Now()
		return c
	}
	l.mu.Unlock()

	backendAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.cfg.InternalHost, l.cfg.BedrockInternalPort))
	if err != nil {
		l.log.Warn("resolving bedrock backend address failed", zap.Error(err))
		return nil
	}
	backendConn, err := net.DialUDP("udp", nil, backendAddr)
	if err != nil {
		l.log.Warn("dialing bedrock backend failed", zap.Error(err))
		return nil
	}

	c := &client{addr: src, backend: backendConn, lastActive: time.Now()}

	l.mu.Lock()
	l.clients[key] = c
	l.mu.Unlock()

	go l.forwardResponses(front, src, c)
	return c
}

func (l *Listener) forwardResponses(front *net.UDPConn, src *net.UDPAddr, c *client) {
	buf := make([]byte, readBufferSize)
	for {
		c.backend.SetReadDeadline(time.Now().Add(clientIdleTimeout))
		n, err := c.backend.Read(buf)
		if err != nil {
			l.removeClient(src)
			return
		}
		front.WriteToUDP(buf[:n], src)
		l.touch(src)
	}
}

func (l *Listener) removeClient(src *net.UDPAddr) {
	key := src.String()
	l.mu.Lock()
	c, ok := l.clients[key]
	if ok {
		delete(l.clients, key)
	}
	l.mu.Unlock()

	if ok {
		c.backend.Close()
		if c.counted {
			l.mgr.DecSession(l.cfg.ID)
		}
	}
}

func (l *Listener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweepIdleClients()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) sweepIdleClients() {
	l.mu.Lock()
	var stale []*net.UDPAddr
	for _, c := range l.clients {
		if time.Since(c.lastActive) > clientIdleTimeout {
			stale = append(stale, c.addr)
		}
	}
	l.mu.Unlock()

	for _, addr := range stale {
		l.removeClient(addr)
	}
}
