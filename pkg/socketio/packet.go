package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PacketType is the Socket.IO packet type.
type PacketType int

const (
	Connect PacketType = iota
	Disconnect
	Event
	Ack
	ConnectError
	BinaryEvent
	BinaryAck
)

// DefaultNamespace is the main namespace.
const DefaultNamespace = "/"

// Protocol limits.
const (
	// MaxPacketLen bounds an encoded packet.
	MaxPacketLen = 1_000_000

	// maxIDDigits keeps ack ids within int range on every platform.
	maxIDDigits = 9
)

var (
	ErrEmptyPacket       = errors.New("socketio: empty packet")
	ErrUnknownType       = errors.New("socketio: unknown packet type")
	ErrBinaryUnsupported = errors.New("socketio: binary packets are not supported")
	ErrInvalidID         = errors.New("socketio: invalid ack id")
	ErrInvalidPayload    = errors.New("socketio: invalid payload")
	ErrLimitExceeded     = errors.New("socketio: limit exceeded")
)

var typeNames = [...]string{"CONNECT", "DISCONNECT", "EVENT", "ACK", "CONNECT_ERROR", "BINARY_EVENT", "BINARY_ACK"}

// String returns the protocol name of the packet type.
func (t PacketType) String() string {
	if t < Connect || t > BinaryAck {
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
	return typeNames[t]
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	// ID is the acknowledgement id; nil when no ack is involved.
	ID   *int
	Data json.RawMessage
}

// Encode renders the packet in its text form.
func Encode(p Packet) (string, error) {
	if p.Type == BinaryEvent || p.Type == BinaryAck {
		return "", ErrBinaryUnsupported
	}
	if p.Type < Connect || p.Type > BinaryAck {
		return "", fmt.Errorf("%w: %d", ErrUnknownType, p.Type)
	}

	var b strings.Builder
	b.WriteString(strconv.Itoa(int(p.Type)))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		if *p.ID < 0 {
			return "", fmt.Errorf("%w: %d", ErrInvalidID, *p.ID)
		}
		b.WriteString(strconv.Itoa(*p.ID))
	}
	b.Write(p.Data)
	return b.String(), nil
}

// Decode parses the text form of a packet and validates its payload shape.
func Decode(s string) (Packet, error) {
	var p Packet
	if len(s) == 0 {
		return p, ErrEmptyPacket
	}
	if len(s) > MaxPacketLen {
		return p, fmt.Errorf("%w: packet length %d exceeds %d", ErrLimitExceeded, len(s), MaxPacketLen)
	}
	if s[0] < '0' || s[0] > '9' {
		return p, fmt.Errorf("%w: %q", ErrUnknownType, s[0])
	}
	p.Type = PacketType(s[0] - '0')
	switch p.Type {
	case BinaryEvent, BinaryAck:
		return p, ErrBinaryUnsupported
	case Connect, Disconnect, Event, Ack, ConnectError:
	default:
		return p, fmt.Errorf("%w: %d", ErrUnknownType, p.Type)
	}

	i := 1
	p.Namespace = DefaultNamespace
	if i < len(s) && s[i] == '/' {
		end := strings.IndexByte(s[i:], ',')
		if end < 0 {
			p.Namespace = s[i:]
			i = len(s)
		} else {
			p.Namespace = s[i : i+end]
			i += end + 1
		}
	}

	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i > start {
		if i-start > maxIDDigits {
			return p, fmt.Errorf("%w: too many digits", ErrInvalidID)
		}
		id, err := strconv.Atoi(s[start:i])
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		p.ID = &id
	}

	if i < len(s) {
		data := []byte(s[i:])
		if !json.Valid(data) {
			return p, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
		}
		p.Data = json.RawMessage(data)
	}

	if err := validate(p); err != nil {
		return p, err
	}
	return p, nil
}

func validate(p Packet) error {
	switch p.Type {
	case Connect:
		if len(p.Data) > 0 && firstByte(p.Data) != '{' {
			return fmt.Errorf("%w: connect payload must be an object", ErrInvalidPayload)
		}
	case Disconnect:
		if len(p.Data) > 0 {
			return fmt.Errorf("%w: disconnect carries no payload", ErrInvalidPayload)
		}
	case Event:
		if _, _, err := p.Event(); err != nil {
			return err
		}
	case Ack:
		if p.ID == nil {
			return fmt.Errorf("%w: ack without id", ErrInvalidID)
		}
		if _, err := p.Args(); err != nil {
			return err
		}
	case ConnectError:
		if len(p.Data) == 0 {
			return fmt.Errorf("%w: connect error without payload", ErrInvalidPayload)
		}
	}
	return nil
}

// Args returns the elements of the packet's JSON array payload.
func (p Packet) Args() ([]json.RawMessage, error) {
	if len(p.Data) == 0 || firstByte(p.Data) != '[' {
		return nil, fmt.Errorf("%w: expected array", ErrInvalidPayload)
	}
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return args, nil
}

// Event splits an event packet into its name and arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	args, err := p.Args()
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrInvalidPayload)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name must be a string", ErrInvalidPayload)
	}
	return name, args[1:], nil
}

// NewEvent builds an event packet. A nil id requests no acknowledgement.
func NewEvent(name string, id *int, args ...any) (Packet, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, fmt.Errorf("socketio: marshal event %q: %w", name, err)
	}
	return Packet{Type: Event, Namespace: DefaultNamespace, ID: id, Data: data}, nil
}

// NewAck builds the acknowledgement packet replying to ack id.
func NewAck(id int, args ...any) (Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, fmt.Errorf("socketio: marshal ack %d: %w", id, err)
	}
	return Packet{Type: Ack, Namespace: DefaultNamespace, ID: &id, Data: data}, nil
}

// NewConnect builds the CONNECT reply. An empty sid yields the bare form
// used by protocol revision 4 (Engine.IO v3) clients.
func NewConnect(sid string) Packet {
	p := Packet{Type: Connect, Namespace: DefaultNamespace}
	if sid != "" {
		data, _ := json.Marshal(map[string]string{"sid": sid})
		p.Data = data
	}
	return p
}

// NewConnectError builds a CONNECT_ERROR packet carrying message.
func NewConnectError(namespace, message string) Packet {
	data, _ := json.Marshal(map[string]string{"message": message})
	return Packet{Type: ConnectError, Namespace: namespace, Data: data}
}

// IntID returns a pointer to id, for building packets inline.
func IntID(id int) *int {
	return &id
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func firstByte(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
