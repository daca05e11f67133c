package probe

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/sawolke/mcwake/mc"
	"github.com/sawolke/mcwake/raknet"
)

// minBackoff/maxBackoff bound the exponential backoff between probe
// attempts, grounded on the teacher's fixed StateUpdateCooldown but
// widened into a growing backoff per the spec's "cap at roughly two
// seconds" requirement instead of a single fixed interval.
const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = 2 * time.Second
)

// Prober performs a protocol-level liveness check against a backend,
// used as the fallback when a container has no health check configured
// or during the (short) window before the daemon reports one.
type Prober struct {
	DialTimeout time.Duration
}

func New() *Prober {
	return &Prober{DialTimeout: 2 * time.Second}
}

// WaitJava polls addr with a minimal handshake+status round trip until
// it answers or ctx is done.
func (p *Prober) WaitJava(ctx context.Context, addr string) error {
	backoff := minBackoff
	for {
		if err := p.probeJavaOnce(addr); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (p *Prober) probeJavaOnce(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, p.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(p.DialTimeout))

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)

	hs := mc.ServerBoundHandshake{
		ProtocolVersion: -1,
		ServerAddress:   host,
		ServerPort:      port,
		NextState:       mc.HandshakeStatusState,
	}
	if _, err := conn.Write(hs.Marshal().Marshal()); err != nil {
		return err
	}
	if _, err := conn.Write(mc.ServerBoundRequest{}.Marshal().Marshal()); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	pk, err := mc.ReadPacket(reader)
	if err != nil {
		return err
	}
	if pk.ID != mc.ClientBoundResponsePacketID {
		return fmt.Errorf("unexpected packet id %#x during status probe", pk.ID)
	}
	return nil
}

// WaitBedrock polls addr with RakNet unconnected pings until a pong
// comes back or ctx is done.
func (p *Prober) WaitBedrock(ctx context.Context, addr string) error {
	backoff := minBackoff
	for {
		if err := p.probeBedrockOnce(addr); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (p *Prober) probeBedrockOnce(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(p.DialTimeout))

	ping := make([]byte, 0, 1+8+len(raknet.Magic)+8)
	ping = append(ping, raknet.IDUnconnectedPing)
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(time.Now().UnixNano()))
	ping = append(ping, tb[:]...)
	ping = append(ping, raknet.Magic...)
	ping = append(ping, make([]byte, 8)...) // client GUID, unused by the probe

	if _, err := conn.Write(ping); err != nil {
		return err
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	if n < 1 || buf[0] != raknet.IDUnconnectedPong {
		return fmt.Errorf("unexpected reply id during bedrock probe")
	}
	return nil
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
