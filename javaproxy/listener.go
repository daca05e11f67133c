package javaproxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pires/go-proxyproto"
	"github.com/sawolke/mcwake/config"
	"github.com/sawolke/mcwake/events"
	"github.com/sawolke/mcwake/lifecycle"
	"github.com/sawolke/mcwake/mc"
	"go.uber.org/zap"
)

// maxHandshakeLength bounds the buffered reader used to peek a
// handshake, following the teacher's ServeListener/BasicWorker sizing
// rationale: packet length(2) + id(1) + protocol(2) + max string(255)
// + port(2) + state(1) = 263, plus one byte.
const maxHandshakeLength = 264

// handshakeReadTimeout bounds how long a client gets to finish sending
// its handshake (and login start, if any) before the connection is
// dropped, per the "short deadline (~5s)" requirement.
const handshakeReadTimeout = 5 * time.Second

// Listener serves one configured Java server on its own external port -
// this spec ties one listener to one backend rather than the teacher's
// single shared listener dispatching by virtual-host domain, since each
// server here owns its own container lifecycle instead of a static
// routing table entry.
type Listener struct {
	cfg config.ServerConfig
	mgr *lifecycle.Manager
	bus *events.Bus
	log *zap.Logger

	sendProxyProtocol bool
}

func NewListener(cfg config.ServerConfig, mgr *lifecycle.Manager, bus *events.Bus, log *zap.Logger) *Listener {
	return &Listener{cfg: cfg, mgr: mgr, bus: bus, log: log}
}

func (l *Listener) Serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("accept failed", zap.Error(err))
			continue
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(handshakeReadTimeout))

	reader := bufio.NewReaderSize(conn, maxHandshakeLength)

	first, err := reader.Peek(1)
	if err != nil {
		return
	}
	if first[0] == mc.LegacyPingFirstByte {
		l.handleLegacyPing(conn)
		return
	}

	rawHS, hs, err := readRawHandshake(reader)
	if err != nil {
		return
	}

	switch hs.State() {
	case mc.StatusRequest:
		conn.SetReadDeadline(time.Time{})
		l.handleStatus(ctx, conn, reader)
	case mc.LoginRequest:
		rawLogin, login, err := readRawLoginStart(reader)
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Time{})
		l.handleLogin(ctx, conn, hs, rawHS, login, rawLogin)
	default:
		// Unknown next-state (e.g. transfer): nothing useful to do but close.
	}
}

// readRawHandshake decodes a handshake while also capturing the exact
// bytes it was decoded from, using mc.BytePeeker so the underlying
// reader is only actually consumed (via Discard) once decoding
// succeeds - letting handleLogin later replay those bytes verbatim
// instead of re-serializing the parsed struct.
func readRawHandshake(reader *bufio.Reader) ([]byte, mc.ServerBoundHandshake, error) {
	peeker := &mc.BytePeeker{PeekReader: reader}
	hs, err := mc.ReadHandshake(peeker)
	if err != nil {
		return nil, hs, err
	}
	raw, err := reader.Peek(peeker.Cursor)
	if err != nil {
		return nil, hs, err
	}
	raw = append([]byte(nil), raw...)
	if _, err := reader.Discard(peeker.Cursor); err != nil {
		return nil, hs, err
	}
	return raw, hs, nil
}

// readRawLoginStart is readRawHandshake's counterpart for the login
// start packet that follows a login-bound handshake.
func readRawLoginStart(reader *bufio.Reader) ([]byte, mc.ServerLoginStart, error) {
	peeker := &mc.BytePeeker{PeekReader: reader}
	pk, err := mc.ReadPacket(peeker)
	if err != nil {
		return nil, mc.ServerLoginStart{}, err
	}
	raw, err := reader.Peek(peeker.Cursor)
	if err != nil {
		return nil, mc.ServerLoginStart{}, err
	}
	raw = append([]byte(nil), raw...)
	if _, err := reader.Discard(peeker.Cursor); err != nil {
		return nil, mc.ServerLoginStart{}, err
	}
	login, err := mc.UnmarshalServerBoundLoginStart(pk)
	return raw, login, err
}

func (l *Listener) handleLegacyPing(conn net.Conn) {
	resp := mc.NewLegacyStatusResponse(l.cfg.FakeProtocol, l.cfg.FakeVersion, l.cfg.MOTD, 0, l.cfg.MaxPlayers)
	conn.Write(resp)
}

// handleStatus never wakes the backend. If the server happens to already
// be RUNNING it proxies the status request live so the reply reflects
// real player counts; otherwise it answers synthetically, per
// original_source/proxy/mc_proxy.py's handle_status_request, narrowed to
// never itself trigger a start (see SPEC_FULL.md §12).
func (l *Listener) handleStatus(ctx context.Context, client net.Conn, reader *bufio.Reader) {
	rt, ok := l.mgr.Runtime(l.cfg.ID)
	if ok && rt.State() == lifecycle.Running {
		if l.proxyStatusLive(client, reader) {
			return
		}
	}

	status := mc.SimpleStatus{
		Name:          l.cfg.FakeVersion,
		Protocol:      l.cfg.FakeProtocol,
		Description:   l.cfg.MOTD + " — sleeping",
		MaxPlayers:    l.cfg.MaxPlayers,
		OnlinePlayers: 0,
		Favicon:       l.cfg.FaviconBase64,
	}
	client.Write(status.Marshal().Marshal())

	// Echo the ping payload back so clients that immediately follow up
	// with a ping packet still see a round trip instead of a closed
	// socket, the way the teacher's SEND_STATUS branch in worker.go does.
	// The client's status request comes first and is skipped.
	for i := 0; i < 2; i++ {
		pk, err := mc.ReadPacket(reader)
		if err != nil {
			return
		}
		if pk.ID == mc.ServerBoundPingPacketID {
			client.Write(pk.Marshal())
			return
		}
	}
}

func (l *Listener) proxyStatusLive(client net.Conn, reader *bufio.Reader) bool {
	backend, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", l.cfg.InternalHost, l.cfg.InternalPort), 2*time.Second)
	if err != nil {
		return false
	}
	defer backend.Close()

	hs := mc.ServerBoundHandshake{
		ProtocolVersion: l.cfg.FakeProtocol,
		ServerAddress:   l.cfg.InternalHost,
		ServerPort:      uint16(l.cfg.InternalPort),
		NextState:       mc.HandshakeStatusState,
	}
	backend.Write(hs.Marshal().Marshal())
	backend.Write(mc.ServerBoundRequest{}.Marshal().Marshal())

	backendReader := bufio.NewReader(backend)
	pk, err := mc.ReadPacket(backendReader)
	if err != nil {
		return false
	}
	client.Write(pk.Marshal())

	readBuf := make([]byte, 16)
	if n, err := reader.Read(readBuf); err == nil {
		backend.Write(readBuf[:n])
		if n2, err := backendReader.Read(readBuf); err == nil {
			client.Write(readBuf[:n2])
		}
	}
	return true
}

func (l *Listener) handleLogin(ctx context.Context, client net.Conn, hs mc.ServerBoundHandshake, rawHS []byte, login mc.ServerLoginStart, rawLogin []byte) {
	if l.bus != nil {
		l.bus.Publish(events.Event{
			Type:     events.PlayerLoginAttempt,
			ServerID: l.cfg.ID,
			Player:   string(login.Name),
		})
	}

	startCtx, cancel := context.WithTimeout(ctx, l.cfg.MaxStartupWait.Duration)
	defer cancel()

	if err := l.mgr.EnsureRunning(startCtx, l.cfg.ID); err != nil {
		client.Write(mc.NewDisconnect("Server is starting, please try again shortly").Marshal())
		return
	}

	backend, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", l.cfg.InternalHost, l.cfg.InternalPort), 5*time.Second)
	if err != nil {
		client.Write(mc.NewDisconnect("Could not reach backend").Marshal())
		return
	}
	defer backend.Close()

	if l.sendProxyProtocol {
		writeProxyHeader(backend, client.RemoteAddr())
	}

	// Replay the exact bytes read off the wire rather than re-marshaling
	// the parsed structs, so any non-canonical VarInt padding or client
	// quirk the backend would otherwise see survives the proxy hop.
	backend.Write(rawHS)
	backend.Write(rawLogin)

	l.mgr.IncSession(l.cfg.ID)
	defer l.mgr.DecSession(l.cfg.ID)

	runSession(client, backend)
}

func writeProxyHeader(dst net.Conn, clientAddr net.Addr) {
	header := &proxyproto.Header{
		Version:           2,
		Command:           proxyproto.PROXY,
		TransportProtocol: proxyproto.TCPv4,
		SourceAddr:        clientAddr,
		DestinationAddr:   dst.RemoteAddr(),
	}
	header.WriteTo(dst)
}
