package mc

import (
	"encoding/binary"
	"strconv"
)

// LegacyPingFirstByte is the first byte of a pre-1.7 (legacy) server list ping.
// A client speaking the modern protocol never sends this as its first byte,
// so listeners branch on it before attempting VarInt framing.
const LegacyPingFirstByte byte = 0xFE

// NewLegacyStatusResponse builds the pre-1.7 kick-packet reply: packet id
// 0xFF (kick), followed by a UTF-16BE string of the form
// "§1\0<protocol>\0<version>\0<motd>\0<online>\0<max>".
func NewLegacyStatusResponse(protocol int, version, motd string, online, max int) []byte {
	fields := []string{
		"§1",
		strconv.Itoa(protocol),
		version,
		motd,
		strconv.Itoa(online),
		strconv.Itoa(max),
	}
	text := fields[0]
	for _, f := range fields[1:] {
		text += "\x00" + f
	}

	utf16 := encodeUTF16BE(text)
	out := []byte{0xFF}
	out = append(out, encodeUint16BE(uint16(len(utf16)/2))...)
	out = append(out, utf16...)
	return out
}

func encodeUint16BE(n uint16) []byte {
	bb := make([]byte, 2)
	binary.BigEndian.PutUint16(bb, n)
	return bb
}

func encodeUTF16BE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, encodeUint16BE(uint16(r))...)
			continue
		}
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		out = append(out, encodeUint16BE(hi)...)
		out = append(out, encodeUint16BE(lo)...)
	}
	return out
}
