package raknet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strconv"
)

// Magic is the fixed 16-byte RakNet offline-message magic every
// unconnected message starts with, right after the message id.
var Magic = []byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

// Offline message ids this proxy needs to classify. RakNet defines many
// more; everything else is treated as already-connected game traffic
// and is simply forwarded, never parsed.
const (
	IDUnconnectedPing        byte = 0x01
	IDUnconnectedPingOpenConn byte = 0x02
	IDOpenConnectionRequest1 byte = 0x05
	IDOpenConnectionReply1   byte = 0x06
	IDOpenConnectionRequest2 byte = 0x07
	IDOpenConnectionReply2   byte = 0x08
	IDUnconnectedPong        byte = 0x1c
)

var ErrNotOfflineMessage = errors.New("not a recognized raknet offline message")

// IsOfflineMessage reports whether the first byte of a datagram is one
// of the unconnected message ids this package understands.
func IsOfflineMessage(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	switch b[0] {
	case IDUnconnectedPing, IDUnconnectedPingOpenConn,
		IDOpenConnectionRequest1, IDOpenConnectionReply1,
		IDOpenConnectionRequest2, IDOpenConnectionReply2,
		IDUnconnectedPong:
		return true
	default:
		return false
	}
}

// UnconnectedPing is a client's "is anyone there" broadcast: id, a
// client timestamp and the magic, followed by the client's own GUID.
type UnconnectedPing struct {
	Time     uint64
	ClientGUID uint64
}

func ParseUnconnectedPing(b []byte) (UnconnectedPing, error) {
	var ping UnconnectedPing
	if len(b) < 1+8+len(Magic)+8 {
		return ping, ErrNotOfflineMessage
	}
	if b[0] != IDUnconnectedPing && b[0] != IDUnconnectedPingOpenConn {
		return ping, ErrNotOfflineMessage
	}
	ping.Time = binary.BigEndian.Uint64(b[1:9])
	magicOff := 9
	if !bytes.Equal(b[magicOff:magicOff+len(Magic)], Magic) {
		return ping, ErrNotOfflineMessage
	}
	ping.ClientGUID = binary.BigEndian.Uint64(b[magicOff+len(Magic):])
	return ping, nil
}

// NewUnconnectedPong builds the MCPE pong that answers an unconnected
// ping: id, echoed timestamp, server GUID, magic, then a u16-prefixed
// advertisement string in the "MCPE;motd;protocol;version;online;max;
// guid;subMotd;gamemode;1;port;port;" layout.
func NewUnconnectedPong(echoTime, serverGUID uint64, advertisement string) []byte {
	adv := []byte(advertisement)
	pkt := make([]byte, 0, 1+8+8+len(Magic)+2+len(adv))
	pkt = append(pkt, IDUnconnectedPong)
	pkt = appendUint64(pkt, echoTime)
	pkt = appendUint64(pkt, serverGUID)
	pkt = append(pkt, Magic...)
	pkt = appendUint16(pkt, uint16(len(adv)))
	pkt = append(pkt, adv...)
	return pkt
}

// BuildMCPEAdvertisement assembles the semicolon-delimited MCPE motd
// string clients parse out of an unconnected pong.
func BuildMCPEAdvertisement(motd string, protocol int, version string, online, max int, serverGUID uint64, subMotd, gamemode string, port, ipv6Port int) string {
	fields := []string{
		"MCPE",
		motd,
		strconv.Itoa(protocol),
		version,
		strconv.Itoa(online),
		strconv.Itoa(max),
		strconv.FormatUint(serverGUID, 10),
		subMotd,
		gamemode,
		"1",
		strconv.Itoa(port),
		strconv.Itoa(ipv6Port),
	}
	out := fields[0]
	for _, f := range fields[1:] {
		out += ";" + f
	}
	return out + ";"
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
