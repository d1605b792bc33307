package config

import "errors"

var (
	// ErrDuplicateActorName is returned when two actor entries in the
	// same configuration tree declare the same name.
	ErrDuplicateActorName = errors.New("duplicate actor name")

	// ErrMissingClass is returned when a non-remote actor entry has no
	// class key.
	ErrMissingClass = errors.New("actor entry missing class")

	// ErrMissingName is returned when an actor entry has no name key.
	ErrMissingName = errors.New("actor entry missing name")

	// ErrUnresolvedVaultKey is returned when a ??key reference has no
	// corresponding entry in the loaded vault.
	ErrUnresolvedVaultKey = errors.New("unresolved vault key")

	// ErrParse is returned for any syntax error while parsing the
	// HOCON-like configuration text.
	ErrParse = errors.New("configuration parse error")

	// ErrKeyNotFound is returned by the typed accessors when a requested
	// key does not exist in the node.
	ErrKeyNotFound = errors.New("configuration key not found")

	// ErrTypeMismatch is returned by the typed accessors when a key
	// exists but holds a value of an incompatible type.
	ErrTypeMismatch = errors.New("configuration value has unexpected type")
)
