package remote

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFrame_RoundTrip pins the exact field layout surviving an
// encode/decode cycle.
func TestFrame_RoundTrip(t *testing.T) {
	in := Frame{
		Universe: "u1",
		Channel:  "/track",
		TypeTag:  "demo.Track",
		Seq:      42,
		Payload:  []byte(`{"id":"X1"}`),
	}

	out, err := DecodeFrame(EncodeFrame(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

// TestFrame_RoundTripProperty exercises arbitrary field contents,
// including empty strings and binary payloads.
func TestFrame_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := Frame{
			Universe: rapid.String().Draw(t, "universe"),
			Channel:  rapid.String().Draw(t, "channel"),
			TypeTag:  rapid.String().Draw(t, "tag"),
			Seq:      rapid.Uint64().Draw(t, "seq"),
			Payload:  rapid.SliceOf(rapid.Byte()).Draw(t, "payload"),
		}

		out, err := DecodeFrame(EncodeFrame(in))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if out.Universe != in.Universe || out.Channel != in.Channel ||
			out.TypeTag != in.TypeTag || out.Seq != in.Seq {
			t.Fatalf("fields mangled: %+v != %+v", out, in)
		}
		if string(out.Payload) != string(in.Payload) {
			t.Fatalf("payload mangled")
		}
	})
}

// TestFrame_DecodeRejectsTruncation covers the malformed-frame paths.
func TestFrame_DecodeRejectsTruncation(t *testing.T) {
	valid := EncodeFrame(Frame{Universe: "u", Channel: "/c", TypeTag: "t", Seq: 1})

	_, err := DecodeFrame(valid[:3])
	require.ErrorIs(t, err, ErrFrameTooShort)

	_, err = DecodeFrame(valid[:len(valid)-2])
	require.ErrorIs(t, err, ErrLengthMismatch)
}

// TestFrame_ControlTags distinguishes control frames from payload frames.
func TestFrame_ControlTags(t *testing.T) {
	require.True(t, Frame{TypeTag: TagSubscribe}.IsControl())
	require.True(t, Frame{TypeTag: TagHeartbeat}.IsControl())
	require.False(t, Frame{TypeTag: "demo.Track"}.IsControl())
}

// TestRegistry_TagLookupAndCodec covers the JSON codec registration path
// the connectors rely on.
func TestRegistry_TagLookupAndCodec(t *testing.T) {
	type track struct {
		ID  string  `json:"id"`
		Lat float64 `json:"lat"`
	}

	r := NewRegistry()
	RegisterJSON[track](r, "demo.Track")

	tag, ok := r.TagFor(track{ID: "X1"})
	require.True(t, ok)
	require.Equal(t, "demo.Track", tag)

	_, ok = r.TagFor("a plain string")
	require.False(t, ok)

	data, err := r.Encode(tag, track{ID: "X1", Lat: 37.0})
	require.NoError(t, err)

	decoded, err := r.Decode(tag, data)
	require.NoError(t, err)
	require.Equal(t, track{ID: "X1", Lat: 37.0}, decoded)

	_, err = r.Encode("unregistered", track{})
	require.ErrorIs(t, err, ErrUnserializablePayload)

	_, err = r.Decode("unregistered", data)
	require.ErrorIs(t, err, ErrUnknownTypeTag)
}

// TestRegistry_ReservedTagsPanic: colliding with a control tag is a
// programming error.
func TestRegistry_ReservedTagsPanic(t *testing.T) {
	r := NewRegistry()
	require.Panics(t, func() {
		r.Register(TagHeartbeat, Codec{})
	})
}
