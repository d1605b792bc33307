package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans a single subsystem logger's records out to several
// btclog handlers, so every kernel package logs once and the record lands
// on both the console and the universe's rotating log file.
type HandlerSet struct {
	level    btclog.Level
	handlers []btclogv2.Handler
}

// NewHandlerSet combines handlers into one. The set starts at Info; call
// SetLevel (directly or through the backing SLogger) to change it.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{handlers: handlers}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// Enabled reports whether at least one member handler wants records at
// level; Handle re-checks per member so a quiet file handler does not
// silence the console.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, member := range h.handlers {
		if member.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle delivers record to every member handler that accepts its level,
// joining any write errors.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, member := range h.handlers {
		if !member.Enabled(ctx, record.Level) {
			continue
		}

		if err := member.Handle(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WithAttrs derives a set whose members all carry the extra attributes.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.fanOut(func(member btclogv2.Handler) slog.Handler {
		return member.WithAttrs(attrs)
	})
}

// WithGroup derives a set whose members all open the named group.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return h.fanOut(func(member btclogv2.Handler) slog.Handler {
		return member.WithGroup(name)
	})
}

// fanOut maps every member through derive into a plain slog fan-out.
// WithAttrs/WithGroup return slog.Handler by contract, so the btclog
// surface (levels, prefixes) is not reconstructible past this point.
func (h *HandlerSet) fanOut(derive func(btclogv2.Handler) slog.Handler) slog.Handler {
	out := slogFanOut{handlers: make([]slog.Handler, len(h.handlers))}
	for i, member := range h.handlers {
		out.handlers[i] = derive(member)
	}

	return out
}

// SubSystem derives a set tagged for one kernel subsystem.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.remap(func(member btclogv2.Handler) btclogv2.Handler {
		return member.SubSystem(tag)
	})
}

// WithPrefix derives a set whose members prefix every message.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.remap(func(member btclogv2.Handler) btclogv2.Handler {
		return member.WithPrefix(prefix)
	})
}

func (h *HandlerSet) remap(derive func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {
	out := &HandlerSet{
		level:    h.level,
		handlers: make([]btclogv2.Handler, len(h.handlers)),
	}
	for i, member := range h.handlers {
		out.handlers[i] = derive(member)
	}

	return out
}

// SetLevel applies level to every member handler.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, member := range h.handlers {
		member.SetLevel(level)
	}
	h.level = level
}

// Level returns the level last applied through SetLevel.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogFanOut is the narrowed, attribute- or group-scoped view of a
// HandlerSet, carrying only the slog half of the contract.
type slogFanOut struct {
	handlers []slog.Handler
}

func (s slogFanOut) Enabled(ctx context.Context, level slog.Level) bool {
	for _, member := range s.handlers {
		if member.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (s slogFanOut) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, member := range s.handlers {
		if !member.Enabled(ctx, record.Level) {
			continue
		}

		if err := member.Handle(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s slogFanOut) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := slogFanOut{handlers: make([]slog.Handler, len(s.handlers))}
	for i, member := range s.handlers {
		out.handlers[i] = member.WithAttrs(attrs)
	}

	return out
}

func (s slogFanOut) WithGroup(name string) slog.Handler {
	out := slogFanOut{handlers: make([]slog.Handler, len(s.handlers))}
	for i, member := range s.handlers {
		out.handlers[i] = member.WithGroup(name)
	}

	return out
}

var _ slog.Handler = slogFanOut{}
