package mc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidPacketID = errors.New("invalid packet id")
	ErrPacketTooBig    = errors.New("packet contains too much data")
	MaxPacketSize      = 2097151
)

const (
	ServerBoundHandshakePacketID byte = 0x00
	HandshakePacketID            int  = 0x00

	StatusState = 1
	LoginState  = 2

	HandshakeStatusState = VarInt(StatusState)
	HandshakeLoginState  = VarInt(LoginState)
)

// Packet is the raw representation of a message sent between client and server.
type Packet struct {
	ID   byte
	Data []byte
}

type McPacket interface {
	MarshalPacket() Packet
}

// Scan decodes and copies the Packet data into the given fields.
func (pk Packet) Scan(fields ...FieldDecoder) error {
	return ScanFields(bytes.NewReader(pk.Data), fields...)
}

// Marshal encodes the packet (length-prefixed id + data) ready to write on the wire.
func (pk Packet) Marshal() []byte {
	data := make([]byte, 0, len(pk.Data)+1)
	data = append(data, pk.ID)
	data = append(data, pk.Data...)
	length := VarInt(len(data)).Encode()
	return append(length, data...)
}

// ScanFields decodes a byte stream into the given fields, in order.
func ScanFields(r DecodeReader, fields ...FieldDecoder) error {
	for _, field := range fields {
		if err := field.Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// MarshalPacket builds a Packet out of an ID and a list of fields.
func MarshalPacket(id byte, fields ...FieldEncoder) Packet {
	pkt := Packet{ID: id}
	for _, v := range fields {
		pkt.Data = append(pkt.Data, v.Encode()...)
	}
	return pkt
}

// ReadPacketBytes decodes a length-prefixed packet and returns its raw id+data bytes.
func ReadPacketBytes(r DecodeReader) ([]byte, error) {
	var length VarInt
	if err := length.Decode(r); err != nil {
		return nil, err
	}
	if length < 1 {
		return nil, fmt.Errorf("packet length too short")
	}
	if int(length) > MaxPacketSize {
		return nil, ErrPacketTooBig
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading packet content failed: %w", err)
	}
	return data, nil
}

// ReadPacket decodes the next framed packet off the wire.
func ReadPacket(r DecodeReader) (Packet, error) {
	data, err := ReadPacketBytes(r)
	if err != nil {
		return Packet{}, err
	}
	return Packet{
		ID:   data[0],
		Data: data[1:],
	}, nil
}
