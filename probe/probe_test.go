package probe_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/sawolke/mcwake/mc"
	"github.com/sawolke/mcwake/probe"
)

func TestWaitJava_Succeeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Read the handshake and status request before answering, as a
		// real server does; closing with them unread resets the socket.
		reader := bufio.NewReader(conn)
		if _, err := mc.ReadHandshake(reader); err != nil {
			return
		}
		if _, err := mc.ReadPacket(reader); err != nil {
			return
		}
		status := mc.SimpleStatus{Name: "1.21", Protocol: 767}
		conn.Write(status.Marshal().Marshal())
	}()

	p := probe.New()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := p.WaitJava(ctx, ln.Addr().String()); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
}

func TestWaitJava_TimesOut(t *testing.T) {
	p := probe.New()
	p.DialTimeout = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := p.WaitJava(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("expected probe against a closed port to fail")
	}
}
