package mc

import "errors"

// ErrAddressTooLong is returned when a handshake's server-address field
// exceeds the protocol's 255-character ceiling - never legitimate, and
// a likely sign of a client probing for oversized-allocation bugs.
var ErrAddressTooLong = errors.New("handshake server address exceeds 255 characters")

// MaxServerAddressLength is the protocol's documented ceiling on the
// handshake's server-address field.
const MaxServerAddressLength = 255

// RequestState classifies what a client's handshake says it wants to do next.
type RequestState byte

const (
	UnknownState RequestState = iota
	StatusRequest
	LoginRequest
	TransferRequest
)

func (s RequestState) String() string {
	switch s {
	case StatusRequest:
		return "status"
	case LoginRequest:
		return "login"
	case TransferRequest:
		return "transfer"
	default:
		return "unknown"
	}
}

// ParseRequestState maps a handshake's next-state field onto a RequestState.
func ParseRequestState(nextState VarInt) RequestState {
	switch nextState {
	case HandshakeStatusState:
		return StatusRequest
	case HandshakeLoginState:
		return LoginRequest
	case VarInt(3):
		return TransferRequest
	default:
		return UnknownState
	}
}

type ServerBoundHandshake struct {
	ProtocolVersion int
	ServerAddress   string
	ServerPort      uint16
	NextState       VarInt
}

const ServerBoundHandshakePacketIDByte byte = 0x00

func (pk ServerBoundHandshake) Marshal() Packet {
	return MarshalPacket(
		ServerBoundHandshakePacketIDByte,
		VarInt(pk.ProtocolVersion),
		String(pk.ServerAddress),
		UnsignedShort(pk.ServerPort),
		pk.NextState,
	)
}

// ReadHandshake reads the VarInt-framed length, the packet id and the
// handshake fields directly off the wire without buffering the whole
// packet body first - the handshake is the one packet every session
// must peek before routing can happen.
func ReadHandshake(r DecodeReader) (ServerBoundHandshake, error) {
	var hs ServerBoundHandshake

	var length VarInt
	if err := length.Decode(r); err != nil {
		return hs, err
	}
	if length < 1 {
		return hs, ErrInvalidPacketID
	}

	var id VarInt
	if err := id.Decode(r); err != nil {
		return hs, err
	}
	if int(id) != HandshakePacketID {
		return hs, ErrInvalidPacketID
	}

	var protocolVersion VarInt
	var addr String
	var port UnsignedShort
	var nextState VarInt
	if err := ScanFields(r, &protocolVersion, &addr, &port, &nextState); err != nil {
		return hs, err
	}
	if len(addr) > MaxServerAddressLength {
		return hs, ErrAddressTooLong
	}

	hs.ProtocolVersion = int(protocolVersion)
	hs.ServerAddress = string(addr)
	hs.ServerPort = uint16(port)
	hs.NextState = nextState
	return hs, nil
}

func (pk ServerBoundHandshake) State() RequestState {
	return ParseRequestState(pk.NextState)
}

const ServerBoundLoginStartPacketID byte = 0x00

type ServerLoginStart struct {
	Name String
}

func (pk ServerLoginStart) Marshal() Packet {
	return MarshalPacket(ServerBoundLoginStartPacketID, pk.Name)
}

func UnmarshalServerBoundLoginStart(packet Packet) (ServerLoginStart, error) {
	var pk ServerLoginStart
	if packet.ID != ServerBoundLoginStartPacketID {
		return pk, ErrInvalidPacketID
	}
	if err := packet.Scan(&pk.Name); err != nil {
		return pk, err
	}
	return pk, nil
}

const ClientBoundDisconnectPacketID byte = 0x00

type ClientBoundDisconnect struct {
	Reason Chat
}

func (pk ClientBoundDisconnect) Marshal() Packet {
	return MarshalPacket(
		ClientBoundDisconnectPacketID,
		pk.Reason,
	)
}

// NewDisconnect builds a disconnect packet carrying a plain-text chat reason.
func NewDisconnect(reason string) Packet {
	text, _ := marshalChatText(reason)
	return ClientBoundDisconnect{Reason: Chat(text)}.Marshal()
}

func UnmarshalClientDisconnect(packet Packet) (ClientBoundDisconnect, error) {
	var pk ClientBoundDisconnect
	if packet.ID != ClientBoundDisconnectPacketID {
		return pk, ErrInvalidPacketID
	}
	err := packet.Scan(&pk.Reason)
	return pk, err
}
