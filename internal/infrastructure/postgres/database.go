package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	dbTracer = otel.Tracer("splitpay/db")
	dbMeter  = otel.Meter("splitpay/db")
)

// DB is a *sql.DB whose query methods open a span per statement.
type DB struct {
	*sql.DB
	stats metric.Registration
}

func New(connStr string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Requests hold a connection for a few statements at most. The change
	// feed listener dials its own connection outside this pool.
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB}
	if err := db.observePool(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// observePool exports sql.DBStats as gauges read at collection time.
func (db *DB) observePool() error {
	inUse, err := dbMeter.Int64ObservableGauge("db.pool.in_use", metric.WithDescription("Connections currently in use"))
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	idle, err := dbMeter.Int64ObservableGauge("db.pool.idle", metric.WithDescription("Idle connections"))
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	waits, err := dbMeter.Int64ObservableCounter("db.pool.wait_count", metric.WithDescription("Connections waited for"))
	if err != nil {
		return fmt.Errorf("failed to create pool counter: %w", err)
	}

	db.stats, err = dbMeter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.DB.Stats()
		o.ObserveInt64(inUse, int64(s.InUse))
		o.ObserveInt64(idle, int64(s.Idle))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, inUse, idle, waits)
	if err != nil {
		return fmt.Errorf("failed to register pool metrics: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	if db.stats != nil {
		_ = db.stats.Unregister()
	}
	return db.DB.Close()
}

// startSpan opens a client span for one statement. The statement text is
// sanitized so literals never reach the trace backend.
func startSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.system", "postgresql")}
	if query != "" {
		attrs = append(attrs,
			attribute.String("db.operation", extractSQLVerb(query)),
			attribute.String("db.statement", sanitizeQuery(query)),
		)
	}
	return dbTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := startSpan(ctx, "db.Query", query)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	endSpan(span, err)
	return rows, err
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := startSpan(ctx, "db.Exec", query)
	result, err := db.DB.ExecContext(ctx, query, args...)
	endSpan(span, err)
	return result, err
}

// QueryRowContext defers ending the span to Scan, where sql.Row reports
// its errors (sql.ErrNoRows included).
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, span := startSpan(ctx, "db.QueryRow", query)
	return &tracedRow{row: db.DB.QueryRowContext(ctx, query, args...), span: span}
}

type tracedRow struct {
	row  *sql.Row
	span trace.Span
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.span != nil {
		// A missing row is an answer, not a failure.
		if err == sql.ErrNoRows {
			r.span.End()
		} else {
			endSpan(r.span, err)
		}
		r.span = nil
	}
	return err
}

// Tx is a traced transaction handed to WithTx callbacks. Group creation,
// expense fan-out and checkout settlement write through it.
type Tx struct {
	*sql.Tx
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	ctx, span := startSpan(ctx, "db.Tx", "")
	defer func() { endSpan(span, err) }()

	sqlTx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err = fn(&Tx{sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			span.RecordError(rbErr)
		}
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := startSpan(ctx, "db.Tx.Exec", query)
	result, err := tx.Tx.ExecContext(ctx, query, args...)
	endSpan(span, err)
	return result, err
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, span := startSpan(ctx, "db.Tx.QueryRow", query)
	return &tracedRow{row: tx.Tx.QueryRowContext(ctx, query, args...), span: span}
}

const maxStatementLen = 256

// sanitizeQuery masks quoted strings and numeric literals with '?'.
// Placeholders ($1, $2, ...) and identifiers containing digits are kept.
func sanitizeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	for i := 0; i < len(q); {
		switch c := q[i]; {
		case c == '\'':
			b.WriteString("'?'")
			i = skipString(q, i+1)
		case isDigit(c) && (i == 0 || !isIdentChar(q[i-1])):
			b.WriteByte('?')
			for i < len(q) && (isDigit(q[i]) || q[i] == '.') {
				i++
			}
		default:
			b.WriteByte(c)
			i++
		}
	}

	s := b.String()
	if len(s) <= maxStatementLen {
		return s
	}
	cut := maxStatementLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// skipString returns the index just past the literal that opened before i.
// Doubled quotes are escapes.
func skipString(q string, i int) int {
	for i < len(q) {
		if q[i] == '\'' {
			if i+1 < len(q) && q[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || c == '_' || c == '$'
}

func extractSQLVerb(q string) string {
	q = strings.TrimSpace(q)
	if idx := strings.IndexAny(q, " \n\t("); idx > 0 {
		q = q[:idx]
	}
	return strings.ToUpper(q)
}
