// Package sqlite provides a SQLite journal of bus events. The journal is an
// audit and replay aid; the shared registry itself stays in memory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	stdSync "sync"
	"time"

	"github.com/c0deZ3R0/signsync/bus"
	syncErrors "github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const component = "storage/sqlite"

// MemoryDSN keeps the journal for the life of the process only.
const MemoryDSN = ":memory:"

var ErrJournalClosed = errors.New("journal is closed")

// ParseSeq parses a journal sequence number. Empty means zero.
func ParseSeq(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil || val < 0 {
		return 0, fmt.Errorf("invalid sequence '%s'", s)
	}
	return val, nil
}

// Entry is one journaled event and its position in the journal.
type Entry struct {
	Seq   int64
	Event bus.Event
}

// Config holds configuration options for the Journal.
type Config struct {
	// DataSourceName is the SQLite connection string. Defaults to MemoryDSN.
	// Example: "file:signsync.db"
	DataSourceName string

	// EnableWAL appends "_journal_mode=WAL" to file databases.
	EnableWAL bool

	// Logger defaults to the storage component logger.
	Logger *slog.Logger

	// TableName defaults to "events".
	TableName string

	// Defaults: MaxOpen=4, MaxIdle=2, Lifetime=1h. In-memory databases
	// always use a single connection, since each connection would see its
	// own empty database.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *Config) setDefaults() {
	if c.DataSourceName == "" {
		c.DataSourceName = MemoryDSN
	}
	if c.TableName == "" {
		c.TableName = "events"
	}
	if c.Logger == nil {
		c.Logger = logging.OrDefault(nil, logging.Component(component))
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if isMemory(c.DataSourceName) {
		c.MaxOpenConns, c.MaxIdleConns = 1, 1
		c.ConnMaxLifetime = 0
		return
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		c.DataSourceName += sep + "_journal_mode=WAL"
	}
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// DefaultConfig returns a Config for dataSourceName with WAL enabled.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{DataSourceName: dataSourceName, EnableWAL: true}
	config.setDefaults()
	return config
}

// Journal appends bus events to a SQLite table. Appends are idempotent by
// event id, so recording the same event twice keeps one row.
type Journal struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *slog.Logger
	table  string
}

// NewWithDataSource is a convenience constructor.
func NewWithDataSource(dataSourceName string) (*Journal, error) {
	return New(DefaultConfig(dataSourceName))
}

// New opens the database and creates the journal table if needed.
func New(config *Config) (*Journal, error) {
	if config == nil {
		config = &Config{}
	}
	config.setDefaults()
	if strings.ContainsAny(config.TableName, " ;'\"") {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, fmt.Errorf("invalid table name %q", config.TableName))
	}

	logger := config.Logger
	logger.Info("opening SQLite journal",
		slog.String("data_source", config.DataSourceName),
		slog.Int("max_open_conns", config.MaxOpenConns),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, syncErrors.WrapOpComponentCode(err, syncErrors.OpJournal, component, syncErrors.ErrCodeStorageFailure)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, syncErrors.WrapOpComponentCode(fmt.Errorf("connect: %w", err), syncErrors.OpJournal, component, syncErrors.ErrCodeStorageFailure)
	}

	j := &Journal{db: db, logger: logger, table: config.TableName}
	if err := j.setupSchema(); err != nil {
		db.Close()
		return nil, syncErrors.WrapOpComponentCode(fmt.Errorf("setup schema: %w", err), syncErrors.OpJournal, component, syncErrors.ErrCodeStorageFailure)
	}
	logger.Info("SQLite journal initialized", slog.String("table_name", j.table))
	return j, nil
}

func (j *Journal) setupSchema() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %[1]s (
        seq         INTEGER PRIMARY KEY AUTOINCREMENT,
        id          TEXT NOT NULL UNIQUE,
        topic       TEXT NOT NULL,
        source_app  TEXT NOT NULL,
        emitted_at  INTEGER NOT NULL,
        payload     TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_%[1]s_topic ON %[1]s (topic);
    CREATE INDEX IF NOT EXISTS idx_%[1]s_source ON %[1]s (source_app);
    `, j.table)
	_, err := j.db.Exec(query)
	return err
}

func (j *Journal) checkOpen() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return syncErrors.WrapOpComponentCode(ErrJournalClosed, syncErrors.OpJournal, component, syncErrors.ErrCodeStorageFailure)
	}
	return nil
}

func wrap(err error) error {
	return syncErrors.WrapOpComponentCode(err, syncErrors.OpJournal, component, syncErrors.ErrCodeStorageFailure)
}

// Append records ev. It reports whether a new row was written.
func (j *Journal) Append(ctx context.Context, ev bus.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := j.checkOpen(); err != nil {
		return false, err
	}
	data, err := bus.EncodePayload(ev.Payload)
	if err != nil {
		return false, syncErrors.NewValidationError(syncErrors.OpJournal, err)
	}
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (id, topic, source_app, emitted_at, payload) VALUES (?, ?, ?, ?, ?)`, j.table)
	res, err := j.db.ExecContext(ctx, query, ev.ID, string(ev.Topic), ev.SourceApp, ev.Timestamp.UnixNano(), string(data))
	if err != nil {
		return false, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(err)
	}
	return n == 1, nil
}

// AppendBatch records events in a single transaction.
func (j *Journal) AppendBatch(ctx context.Context, events []bus.Event) (err error) {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(fmt.Errorf("begin batch: %w", err))
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (id, topic, source_app, emitted_at, payload) VALUES (?, ?, ?, ?, ?)`, j.table))
	if err != nil {
		return wrap(fmt.Errorf("prepare batch: %w", err))
	}
	defer stmt.Close()

	for _, ev := range events {
		data, encErr := bus.EncodePayload(ev.Payload)
		if encErr != nil {
			err = syncErrors.NewValidationError(syncErrors.OpJournal, encErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, ev.ID, string(ev.Topic), ev.SourceApp, ev.Timestamp.UnixNano(), string(data)); err != nil {
			err = wrap(fmt.Errorf("insert %s: %w", ev.ID, err))
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = wrap(fmt.Errorf("commit batch: %w", err))
		return err
	}
	return nil
}

// Record subscribes the journal to every topic on b. Append failures are
// logged and reported as system errors; they never fail the publish.
func (j *Journal) Record(b *bus.Bus) bus.CancelFunc {
	return b.SubscribeAll("journal", func(ctx context.Context, ev bus.Event) error {
		if _, err := j.Append(ctx, ev); err != nil {
			j.logger.Error("journal append failed", "topic", ev.Topic, "event_id", ev.ID, "error", err)
			// A failed system error append must not report another one.
			if ev.Topic != bus.TopicSystemError {
				b.ReportError(ctx, "journal", err)
			}
		}
		return nil
	})
}

// Load returns every event after since in journal order.
func (j *Journal) Load(ctx context.Context, since int64) ([]Entry, error) {
	return j.query(ctx, fmt.Sprintf(`SELECT seq, id, topic, source_app, emitted_at, payload FROM %s WHERE seq > ? ORDER BY seq ASC`, j.table), since)
}

// LoadByTopic returns events on topic after since.
func (j *Journal) LoadByTopic(ctx context.Context, topic bus.Topic, since int64) ([]Entry, error) {
	return j.query(ctx, fmt.Sprintf(`SELECT seq, id, topic, source_app, emitted_at, payload FROM %s WHERE topic = ? AND seq > ? ORDER BY seq ASC`, j.table), string(topic), since)
}

// LoadBySource returns events emitted by app after since.
func (j *Journal) LoadBySource(ctx context.Context, app string, since int64) ([]Entry, error) {
	return j.query(ctx, fmt.Sprintf(`SELECT seq, id, topic, source_app, emitted_at, payload FROM %s WHERE source_app = ? AND seq > ? ORDER BY seq ASC`, j.table), app, since)
}

// LatestSeq returns the highest sequence number, or 0 for an empty journal.
func (j *Journal) LatestSeq(ctx context.Context) (int64, error) {
	if err := j.checkOpen(); err != nil {
		return 0, err
	}
	var maxSeq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(seq) FROM %s`, j.table)).Scan(&maxSeq); err != nil {
		return 0, wrap(err)
	}
	if !maxSeq.Valid {
		return 0, nil
	}
	return maxSeq.Int64, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// Stats returns database statistics for monitoring.
func (j *Journal) Stats() sql.DBStats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return sql.DBStats{}
	}
	return j.db.Stats()
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	if err := j.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			topic   string
			emitted int64
			payload string
		)
		if err := rows.Scan(&e.Seq, &e.Event.ID, &topic, &e.Event.SourceApp, &emitted, &payload); err != nil {
			return nil, wrap(fmt.Errorf("scan row: %w", err))
		}
		e.Event.Topic = bus.Topic(topic)
		e.Event.Timestamp = time.Unix(0, emitted).UTC()
		p, err := bus.DecodePayload(e.Event.Topic, []byte(payload))
		if err != nil {
			return nil, wrap(fmt.Errorf("row %d: %w", e.Seq, err))
		}
		e.Event.Payload = p
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(fmt.Errorf("row iteration: %w", err))
	}
	return entries, nil
}
