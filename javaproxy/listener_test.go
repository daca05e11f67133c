package javaproxy_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sawolke/mcwake/config"
	"github.com/sawolke/mcwake/containerctl"
	"github.com/sawolke/mcwake/events"
	"github.com/sawolke/mcwake/javaproxy"
	"github.com/sawolke/mcwake/lifecycle"
	"github.com/sawolke/mcwake/mc"
	"github.com/sawolke/mcwake/probe"
	"go.uber.org/zap"
)

type alwaysRunningCtl struct{}

func (alwaysRunningCtl) Start(ctx context.Context, name string) error { return nil }
func (alwaysRunningCtl) Stop(ctx context.Context, name string, timeout time.Duration) error {
	return nil
}
func (alwaysRunningCtl) Status(ctx context.Context, name string) (containerctl.Status, error) {
	return containerctl.Status{State: containerctl.StateRunning, Health: containerctl.HealthHealthy}, nil
}

type stoppedCtl struct{}

func (stoppedCtl) Start(ctx context.Context, name string) error { return nil }
func (stoppedCtl) Stop(ctx context.Context, name string, timeout time.Duration) error {
	return nil
}
func (stoppedCtl) Status(ctx context.Context, name string) (containerctl.Status, error) {
	return containerctl.Status{State: containerctl.StateExited}, nil
}

func testConfig() config.ServerConfig {
	cfg := config.DefaultServerConfig()
	cfg.ID = "survival"
	cfg.ContainerName = "mc-survival"
	cfg.InternalHost = "127.0.0.1"
	cfg.InternalPort = 25565
	cfg.ExternalPort = 25566
	cfg.MaxStartupWait = config.Duration{Duration: time.Second}
	return cfg
}

func TestListener_StatusIsSynthetic(t *testing.T) {
	cfg := testConfig()
	mgr := lifecycle.NewManager(alwaysRunningCtl{}, probe.New(), events.NewBus(zap.NewNop()), zap.NewNop())
	mgr.Sync([]config.ServerConfig{cfg})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	listener := javaproxy.NewListener(cfg, mgr, events.NewBus(zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	hs := mc.ServerBoundHandshake{
		ProtocolVersion: 767,
		ServerAddress:   "play.example.com",
		ServerPort:      25566,
		NextState:       mc.HandshakeStatusState,
	}
	conn.Write(hs.Marshal().Marshal())
	conn.Write(mc.ServerBoundRequest{}.Marshal().Marshal())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pk, err := mc.ReadPacket(bufio.NewReader(conn))
	if err != nil {
		t.Fatal(err)
	}
	if pk.ID != mc.ClientBoundResponsePacketID {
		t.Fatalf("got packet id %#x; want status response", pk.ID)
	}
}

func TestListener_SyntheticStatusMarksSleeping(t *testing.T) {
	cfg := testConfig()
	cfg.MOTD = "A Minecraft Server"
	mgr := lifecycle.NewManager(stoppedCtl{}, probe.New(), events.NewBus(zap.NewNop()), zap.NewNop())
	mgr.Sync([]config.ServerConfig{cfg})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	listener := javaproxy.NewListener(cfg, mgr, events.NewBus(zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	hs := mc.ServerBoundHandshake{
		ProtocolVersion: 767,
		ServerAddress:   "play.example.com",
		ServerPort:      25566,
		NextState:       mc.HandshakeStatusState,
	}
	conn.Write(hs.Marshal().Marshal())
	conn.Write(mc.ServerBoundRequest{}.Marshal().Marshal())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pk, err := mc.ReadPacket(bufio.NewReader(conn))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := mc.UnmarshalClientBoundResponse(pk)
	if err != nil {
		t.Fatal(err)
	}
	var parsed mc.ResponseJSON
	if err := json.Unmarshal([]byte(resp.JSONResponse), &parsed); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(parsed.Description.Text, "— sleeping") {
		t.Fatalf("description %q does not end in sleeping suffix", parsed.Description.Text)
	}
}
