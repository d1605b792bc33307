package remote

import (
	"encoding/binary"
	"fmt"
)

// Reserved type tags for BusConnector control traffic, kept apart from
// ordinary payload type tags (which name a registered Codec) by a "$"
// prefix. IsControl and Registry.Register recognise exactly these four
// tags; other "$"-prefixed tags are treated as payload tags.
const (
	TagSubscribe    = "$subscribe"
	TagUnsubscribe  = "$unsubscribe"
	TagHeartbeat    = "$heartbeat"
	TagProviderGone = "$providergone"
)

// Frame is the opaque envelope the remote wire protocol ships: a source
// universe name, a channel name, a payload type tag, a serialized
// payload, and a monotonic per-connection sequence number.
type Frame struct {
	Universe string
	Channel  string
	TypeTag  string
	Seq      uint64
	Payload  []byte
}

// IsControl reports whether this frame carries BusConnector protocol
// traffic (Subscribe/Unsubscribe/Heartbeat/ProviderGone) rather than a
// domain payload.
func (f Frame) IsControl() bool {
	switch f.TypeTag {
	case TagSubscribe, TagUnsubscribe, TagHeartbeat, TagProviderGone:
		return true
	default:
		return false
	}
}

// EncodeFrame renders f as the wire layout: a 4-byte big-endian length
// prefix covering everything that
// follows it, then universe-name length+bytes, channel length+bytes,
// type-tag length+bytes, an 8-byte big-endian sequence number, and the
// raw payload bytes. The length prefix is redundant over a
// message-framed transport (e.g. a websocket binary frame already
// delineates one Frame), but every Transport implementation — including a
// raw TLS/SSH byte stream — can rely on it to find frame boundaries.
func EncodeFrame(f Frame) []byte {
	body := make([]byte, 0, 3*4+len(f.Universe)+len(f.Channel)+len(f.TypeTag)+8+len(f.Payload))
	body = appendLenPrefixed(body, f.Universe)
	body = appendLenPrefixed(body, f.Channel)
	body = appendLenPrefixed(body, f.TypeTag)
	body = binary.BigEndian.AppendUint64(body, f.Seq)
	body = append(body, f.Payload...)

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)

	return out
}

func appendLenPrefixed(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// DecodeFrame parses the byte layout EncodeFrame produces, including its
// leading 4-byte length prefix, which must equal the length of everything
// that follows it.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < 4 {
		return Frame{}, ErrFrameTooShort
	}

	declared := binary.BigEndian.Uint32(data)
	body := data[4:]
	if uint32(len(body)) != declared {
		return Frame{}, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, declared, len(body))
	}

	universe, body, err := readLenPrefixed(body)
	if err != nil {
		return Frame{}, err
	}

	channel, body, err := readLenPrefixed(body)
	if err != nil {
		return Frame{}, err
	}

	typeTag, body, err := readLenPrefixed(body)
	if err != nil {
		return Frame{}, err
	}

	if len(body) < 8 {
		return Frame{}, ErrFrameTooShort
	}
	seq := binary.BigEndian.Uint64(body)
	payload := body[8:]

	return Frame{
		Universe: universe,
		Channel:  channel,
		TypeTag:  typeTag,
		Seq:      seq,
		Payload:  payload,
	}, nil
}

func readLenPrefixed(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, ErrFrameTooShort
	}

	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return "", nil, ErrFrameTooShort
	}

	return string(data[:n]), data[n:], nil
}
