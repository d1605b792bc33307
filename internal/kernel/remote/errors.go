package remote

import "errors"

// Sentinel errors for the remote transport and BusConnector: transport
// loss, serialization failures, and malformed wire frames.
var (
	// ErrUnserializablePayload is a SerializationError: the payload's
	// concrete type has no registered codec, so it cannot cross a
	// BusConnector. The publication is dropped, not delivered.
	ErrUnserializablePayload = errors.New("remote: payload has no registered codec")

	// ErrUnknownTypeTag is returned when a decoded frame names a type tag
	// this process never registered a codec for.
	ErrUnknownTypeTag = errors.New("remote: no codec registered for type tag")

	// ErrTransportClosed is a TransportError: the underlying connection
	// is gone, surfaced to dependents as ProviderGone.
	ErrTransportClosed = errors.New("remote: transport closed")

	// ErrFrameTooShort is a malformed-wire-frame TransportError.
	ErrFrameTooShort = errors.New("remote: frame shorter than its length prefix")

	// ErrLengthMismatch is a malformed-wire-frame TransportError: the
	// frame's leading length prefix does not match its actual size.
	ErrLengthMismatch = errors.New("remote: frame length prefix does not match body size")
)
