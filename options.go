package ormlite

import (
	"context"
	"time"

	"github.com/AlekSi/pointer"
	"go.uber.org/zap"
)

// OpenFlag controls how the underlying SQLite connection is opened. Flags
// are combined with bitwise OR, mirroring SQLite's own open-mode flags.
type OpenFlag int

// Open flags.
const (
	ReadOnly OpenFlag = 1 << iota
	ReadWrite
	Create
	NoMutex
	FullMutex
	SharedCache
	PrivateCache
)

// Has reports whether f includes flag.
func (f OpenFlag) Has(flag OpenFlag) bool {
	return f&flag != 0
}

// TimeFormat selects how time.Time values are marshaled into SQLite columns.
type TimeFormat int

// Time formats.
const (
	// TimeFormatISO8601 stores times as ISO-8601 text (the default).
	TimeFormatISO8601 TimeFormat = iota

	// TimeFormatUnixTicks stores times as integer Unix nanoseconds.
	TimeFormatUnixTicks
)

// UpgradeFunc is invoked once during Open when the database's user_version
// is less than the configured target. It receives the version read from the
// database and the configured target version.
//
// UpgradeFunc must not itself change user_version; Connection advances it to
// the target version once UpgradeFunc returns nil.
type UpgradeFunc func(ctx context.Context, conn *Connection, from, to int64) error

// Options holds every knob accepted by Open. Construct one with the With*
// functions below, not by composing this struct directly: its shape may
// grow.
type Options struct {
	flags OpenFlag

	// busyTimeout is a pointer so WithBusyTimeout(0) (busy handler turned
	// off: a locked database fails at once with SQLITE_BUSY) is
	// distinguishable from "not set" (use the default).
	busyTimeout *time.Duration

	encryptionKey     []byte
	encryptionKeyText string

	targetUserVersion int64
	upgrade           UpgradeFunc

	logger        *zap.Logger
	traceEnabled  bool
	timeExecution bool

	timeFormat TimeFormat
}

// Option configures Options.
type Option func(*Options)

// defaultBusyTimeout is applied when the caller never calls WithBusyTimeout.
const defaultBusyTimeout = 100 * time.Millisecond

// defaultOptions returns the Options in effect before any Option is applied.
func defaultOptions() *Options {
	return &Options{
		flags:  ReadWrite | Create,
		logger: zap.NewNop(),
	}
}

// WithFlags sets the open-mode flags. Default is ReadWrite|Create.
func WithFlags(flags OpenFlag) Option {
	return func(o *Options) { o.flags = flags }
}

// WithBusyTimeout overrides the default 100ms busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *Options) { o.busyTimeout = pointer.To(d) }
}

// WithEncryptionKeyText sets a text encryption key (issued as
// `pragma key = '<quoted>'`).
func WithEncryptionKeyText(key string) Option {
	return func(o *Options) { o.encryptionKeyText = key }
}

// WithEncryptionKeyBinary sets a binary encryption key. It must be exactly
// 32 bytes; Open returns an *Error of kind ErrInvalidArgument otherwise.
func WithEncryptionKeyBinary(key []byte) Option {
	return func(o *Options) { o.encryptionKey = key }
}

// WithUserVersion sets the target schema generation and the function used
// to advance the database to it when the on-disk user_version is lower.
func WithUserVersion(target int64, upgrade UpgradeFunc) Option {
	return func(o *Options) {
		o.targetUserVersion = target
		o.upgrade = upgrade
	}
}

// WithLogger sets the structured logger used for query and lifecycle
// logging. A nil logger is equivalent to not calling WithLogger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTrace wraps each Connection.Execute call in an additional
// runtime/trace region. No other call is affected by it.
func WithTrace(enabled bool) Option {
	return func(o *Options) { o.traceEnabled = enabled }
}

// WithTimeExecution enables logging the wall-clock duration of every
// executed statement at debug level.
func WithTimeExecution(enabled bool) Option {
	return func(o *Options) { o.timeExecution = enabled }
}

// WithTimeFormat selects how time.Time values are marshaled. Default is
// TimeFormatISO8601.
func WithTimeFormat(f TimeFormat) Option {
	return func(o *Options) { o.timeFormat = f }
}

// busyTimeoutMillis returns the configured busy timeout truncated to whole
// milliseconds, as the PRAGMA expects, falling back to defaultBusyTimeout
// when the caller never called WithBusyTimeout.
func (o *Options) busyTimeoutMillis() int64 {
	d := pointer.Get(o.busyTimeout) // zero if o.busyTimeout is nil
	if o.busyTimeout == nil {
		d = defaultBusyTimeout
	}

	return int64(d / time.Millisecond)
}
