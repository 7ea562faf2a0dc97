package ormlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ormlite/ormlite/internal/util/lazyerrors"
	"github.com/ormlite/ormlite/internal/util/observability"
	"github.com/ormlite/ormlite/internal/util/resource"
)

// Parts of the Prometheus metric names this package registers.
const (
	metricNamespace = "ormlite"
	metricSubsystem = "connection"
)

// cacheKey identifies one cached prepared insert/upsert statement.
type cacheKey struct {
	typeID   any
	modifier string
}

// Connection owns a single SQLite database handle, its prepared-statement
// cache, and its change-notification subscriber list. A Connection is not
// safe for concurrent use by multiple goroutines issuing overlapping
// statements: the engine permits one active statement per connection, and
// callers are expected to serialize their own access (the cached insert
// statements are the one exception, each guarded by its own mutex).
//
//nolint:vet // for readability
type Connection struct {
	db   *sql.DB
	path string
	opts *Options

	open atomic.Bool

	transactionDepth atomic.Int64

	cacheMu sync.Mutex
	cache   map[cacheKey]*cachedStatement

	notifier changeNotifier

	libraryVersion string

	token *resource.Token
}

// cachedStatement pairs a PreparedStatement with the mutex that serializes
// access to it, per the insert/upsert pipeline's per-statement mutual
// exclusion requirement.
type cachedStatement struct {
	mu   sync.Mutex
	stmt *PreparedStatement
}

// Open opens (creating if necessary and permitted) the SQLite database at
// path and applies opts.
func Open(ctx context.Context, path string, opts ...Option) (*Connection, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	db, err := sql.Open("sqlite", dsn(path, o.flags))
	if err != nil {
		return nil, NewError(ErrCannotOpen, err)
	}

	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	// SQLite permits only one writer; a pool of connections each thinking
	// they hold the only handle defeats the single-connection transaction
	// model this package assumes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn := &Connection{
		db:    db,
		path:  path,
		opts:  o,
		cache: make(map[cacheKey]*cachedStatement),
		token: resource.NewToken(),
	}

	if err := conn.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	conn.open.Store(true)
	resource.Track(conn, conn.token)

	return conn, nil
}

// dsn builds the modernc.org/sqlite DSN for path and flags, composing the
// query string the same way a net/url.URL's Query does.
//
// NoMutex and FullMutex have no DSN equivalent: SQLite's threading mode is
// selected by the C-level sqlite3_open_v2 flags, not by a URI query
// parameter, and modernc.org/sqlite does not expose a substitute. Create is
// likewise not separately expressible: a bare filename DSN already opens
// with create-if-missing semantics unless mode=ro or mode=rw says
// otherwise, so Create only matters here in that it keeps ReadWrite from
// narrowing to mode=rw.
func dsn(path string, flags OpenFlag) string {
	q := url.Values{}

	switch {
	case flags.Has(ReadOnly):
		q.Set("mode", "ro")
	case flags.Has(ReadWrite) && !flags.Has(Create):
		q.Set("mode", "rw")
	}

	switch {
	case flags.Has(SharedCache):
		q.Set("cache", "shared")
	case flags.Has(PrivateCache):
		q.Set("cache", "private")
	}

	if len(q) == 0 {
		return path
	}

	return path + "?" + q.Encode()
}

// init runs one-time setup after the handle is opened: busy timeout,
// foreign keys, WAL mode, encryption key, version probe, and the
// user_version upgrade flow.
func (c *Connection) init(ctx context.Context) error {
	if err := c.setEncryptionKey(ctx); err != nil {
		return err
	}

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", c.opts.busyTimeoutMillis())); err != nil {
		return NewError(ErrCannotOpen, lazyerrors.Error(err))
	}

	if _, err := c.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return NewError(ErrCannotOpen, lazyerrors.Error(err))
	}

	if c.opts.flags.Has(ReadWrite) || c.opts.flags == 0 {
		if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return NewError(ErrCannotOpen, lazyerrors.Error(err))
		}
	}

	row := c.db.QueryRowContext(ctx, "SELECT sqlite_version()")
	if err := row.Scan(&c.libraryVersion); err != nil {
		return NewError(ErrCannotOpen, lazyerrors.Error(err))
	}

	return c.upgradeSchema(ctx)
}

// setEncryptionKey issues `pragma key` when an encryption key was
// configured via WithEncryptionKeyText or WithEncryptionKeyBinary.
func (c *Connection) setEncryptionKey(ctx context.Context) error {
	switch {
	case c.opts.encryptionKeyText != "":
		_, err := c.db.ExecContext(ctx, fmt.Sprintf("pragma key = %s", quoteLiteral(c.opts.encryptionKeyText)))
		if err != nil {
			return NewError(ErrCannotOpen, lazyerrors.Error(err))
		}

	case c.opts.encryptionKey != nil:
		if len(c.opts.encryptionKey) != 32 {
			return NewError(ErrInvalidArgument, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(c.opts.encryptionKey)))
		}

		stmt := fmt.Sprintf(`pragma key = "x'%s'"`, hex.EncodeToString(c.opts.encryptionKey))
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return NewError(ErrCannotOpen, lazyerrors.Error(err))
		}
	}

	return nil
}

// upgradeSchema reads PRAGMA user_version and, per the configured target,
// proceeds, fails with ErrUnsupportedDowngrade, or runs the upgrade
// callback and advances user_version to the target.
func (c *Connection) upgradeSchema(ctx context.Context) error {
	if c.opts.targetUserVersion == 0 && c.opts.upgrade == nil {
		return nil
	}

	var current int64

	row := c.db.QueryRowContext(ctx, "PRAGMA user_version")
	if err := row.Scan(&current); err != nil {
		return NewError(ErrCannotOpen, lazyerrors.Error(err))
	}

	switch {
	case current == c.opts.targetUserVersion:
		return nil

	case current > c.opts.targetUserVersion:
		return NewError(ErrUnsupportedDowngrade,
			fmt.Errorf("database user_version %d is newer than configured target %d", current, c.opts.targetUserVersion))

	default:
		if c.opts.upgrade != nil {
			if err := c.opts.upgrade(ctx, c, current, c.opts.targetUserVersion); err != nil {
				return lazyerrors.Error(err)
			}
		}

		stmt := fmt.Sprintf("PRAGMA user_version = %d", c.opts.targetUserVersion)
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return NewError(ErrCannotOpen, lazyerrors.Error(err))
		}

		return nil
	}
}

// IsOpen reports whether Close has not yet been called.
func (c *Connection) IsOpen() bool {
	return c.open.Load()
}

// TimeFormat returns the time.Time marshaling format this connection was
// opened with, for descriptor builders whose Get/Set functions call
// FormatTime/ParseTime.
func (c *Connection) TimeFormat() TimeFormat {
	return c.opts.timeFormat
}

// LibraryVersion returns the underlying SQLite library's version string,
// as reported by sqlite_version().
func (c *Connection) LibraryVersion() string {
	return c.libraryVersion
}

// OnChange registers h to be invoked synchronously after every mutation
// that affects at least one row. It returns a function that unsubscribes
// h.
func (c *Connection) OnChange(h ChangeHandler) func() {
	return c.notifier.subscribe(h)
}

// Close disposes every cached prepared statement, then closes the
// underlying handle, returning every disposal and close error combined.
// Close is idempotent. The finalizer Open registers never calls Close: it
// panics to report a Connection that was not closed.
func (c *Connection) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}

	var disposeErr error

	c.cacheMu.Lock()
	for k, cs := range c.cache {
		disposeErr = multierr.Append(disposeErr, cs.stmt.dispose())
		delete(c.cache, k)
	}
	c.cacheMu.Unlock()

	resource.Untrack(c, c.token)

	if err := c.db.Close(); err != nil {
		disposeErr = multierr.Append(disposeErr, err)
	}

	if disposeErr != nil {
		return NewError(ErrEngine, lazyerrors.Error(disposeErr))
	}

	return nil
}

// Execute prepares, binds, and steps sql to completion, returning the
// number of affected rows.
func (c *Connection) Execute(ctx context.Context, sqlText string, args ...any) (int64, error) {
	if c.opts.traceEnabled {
		defer observability.FuncCall(ctx)()
	}

	start := time.Now()

	if trace.IsEnabled() {
		region := trace.StartRegion(ctx, "ormlite.Execute")
		defer region.End()
	}

	c.logSQL(sqlText, args)

	res, err := c.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, c.classifyEngineError(err, nil)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, NewError(ErrEngine, lazyerrors.Error(err))
	}

	c.logDuration(sqlText, start)

	return affected, nil
}

// ExecuteScalar prepares, binds, and steps sql once, decoding the first
// column of the first row into T. If the statement produces no row, T's
// zero value is returned.
func ExecuteScalar[T any](ctx context.Context, c *Connection, sqlText string, args ...any) (T, error) {
	var zero T

	c.logSQL(sqlText, args)

	row := c.db.QueryRowContext(ctx, sqlText, args...)

	var v T
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, nil
		}

		return zero, c.classifyEngineError(err, nil)
	}

	return v, nil
}

// Query eagerly materializes every row of sql into a []T, using T's
// registered TableDescriptor to map columns by name onto fields.
func Query[T any](ctx context.Context, c *Connection, sqlText string, args ...any) ([]T, error) {
	desc, err := descriptorFor[T]()
	if err != nil {
		return nil, err
	}

	c.logSQL(sqlText, args)

	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, c.classifyEngineError(err, nil)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, NewError(ErrEngine, lazyerrors.Error(err))
	}

	idx := columnIndex(names, desc)

	var out []T

	for rows.Next() {
		var rec T

		if err := scanRowIndexed(rows, desc, idx, len(names), &rec); err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, c.classifyEngineError(err, nil)
	}

	return out, nil
}

// DeferredQuery returns a Cursor that steps sql lazily, one row per call to
// Next. The Cursor borrows c for its lifetime: c must remain open, and
// concurrent statements must not be issued against c, until the Cursor is
// closed.
func DeferredQuery[T any](ctx context.Context, c *Connection, sqlText string, args ...any) (*Cursor[T], error) {
	desc, err := descriptorFor[T]()
	if err != nil {
		return nil, err
	}

	c.logSQL(sqlText, args)

	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, c.classifyEngineError(err, nil)
	}

	return newCursor[T](ctx, c, rows, desc), nil
}

// classifyEngineError maps a database/sql/modernc.org/sqlite error into an
// *Error, classifying NOT NULL constraint violations using cols when
// available.
func (c *Connection) classifyEngineError(err error, cols []string) error {
	code, ok := extendedCode(err)
	if !ok {
		return NewError(ErrEngine, lazyerrors.Error(err))
	}

	if isConstraintNotNull(code) {
		e := NewError(ErrNotNullConstraint, lazyerrors.Error(err))
		e.Columns = cols
		e.Code = code

		return e
	}

	if isConstraint(code) {
		e := NewError(ErrConstraint, lazyerrors.Error(err))
		e.Code = code

		return e
	}

	e := NewError(ErrEngine, lazyerrors.Error(err))
	e.Code = code

	return e
}

// logSQL logs the statement text at debug level before execution, when a
// logger was configured.
func (c *Connection) logSQL(sqlText string, args []any) {
	c.opts.logger.Debug(">>> sql", zap.String("sql", sqlText), zap.Any("args", args))
}

// logDuration logs how long a statement took, when WithTimeExecution was
// enabled.
func (c *Connection) logDuration(sqlText string, start time.Time) {
	if !c.opts.timeExecution {
		return
	}

	c.opts.logger.Debug("<<< sql", zap.String("sql", sqlText), zap.Duration("took", time.Since(start)))
}

// Describe implements prometheus.Collector.
func (c *Connection) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Connection) Collect(ch chan<- prometheus.Metric) {
	c.cacheMu.Lock()
	n := len(c.cache)
	c.cacheMu.Unlock()

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, metricSubsystem, "cached_statements"),
			"The current number of cached prepared insert/upsert statements.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(n),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, metricSubsystem, "transaction_depth"),
			"The current savepoint nesting depth.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(c.transactionDepth.Load()),
	)
}

// check interfaces
var (
	_ prometheus.Collector = (*Connection)(nil)
)
