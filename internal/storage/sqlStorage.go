package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/ecbank_web/customErrors"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/logging"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

const (
	DIALECT_MYSQL    = "mysql"
	DIALECT_POSTGRES = "postgres"
)

var (
	connectAttempts = 15
	connectDelay    = 3 * time.Second
)

// --- INIT START --- //

// Init opens the database for dialect, waits until it answers and makes
// sure the session_entry table exists.
func Init(ctx context.Context, dialect string, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missing DB_DSN for %s session storage", dialect)
	}

	driverName, err := driverFor(dialect)
	if err != nil {
		return nil, err
	}

	if dialect == DIALECT_MYSQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	}

	logging.Logger.Infof("Connecting to %s session storage...", dialect)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}

	if err := waitForDatabase(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare session schema: %w", err)
	}

	logging.Logger.Info("Connected to session storage successfully")
	return db, nil
}

func driverFor(dialect string) (string, error) {
	switch dialect {
	case DIALECT_MYSQL:
		return "mysql", nil
	case DIALECT_POSTGRES:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported session storage dialect: %q", dialect)
	}
}

func waitForDatabase(ctx context.Context, db *sql.DB) error {
	for i := 0; i < connectAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/%d)", i+1, connectAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	return fmt.Errorf("database unreachable after multiple attempts")
}

func schemaFor(dialect string) string {
	if dialect == DIALECT_POSTGRES {
		return `CREATE TABLE IF NOT EXISTS session_entry (
        session_id VARCHAR(64) NOT NULL,
        entry_key VARCHAR(64) NOT NULL,
        entry_value TEXT NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (session_id, entry_key)
    )`
	}
	return `CREATE TABLE IF NOT EXISTS session_entry (
        session_id VARCHAR(64) NOT NULL,
        entry_key VARCHAR(64) NOT NULL,
        entry_value MEDIUMTEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (session_id, entry_key)
    ) CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci`
}

func ensureSchema(ctx context.Context, db *sql.DB, dialect string) error {
	_, err := db.ExecContext(ctx, schemaFor(dialect))
	return err
}

// --- INIT END --- //

// SQLStorage keeps session records in a session_entry table, one row per
// (session, key).
type SQLStorage struct {
	db      *sql.DB
	dialect string
}

func NewSQLStorage(db *sql.DB, dialect string) *SQLStorage {
	return &SQLStorage{db: db, dialect: dialect}
}

func (s *SQLStorage) GetStorageType() string {
	return s.dialect
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DIALECT_POSTGRES {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) upsertQuery() string {
	if s.dialect == DIALECT_POSTGRES {
		return s.rebind(`INSERT INTO session_entry (session_id, entry_key, entry_value, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (session_id, entry_key) DO UPDATE SET entry_value = EXCLUDED.entry_value, updated_at = EXCLUDED.updated_at`)
	}
	return `INSERT INTO session_entry (session_id, entry_key, entry_value, updated_at) VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value), updated_at = VALUES(updated_at)`
}

func (s *SQLStorage) Get(ctx context.Context, sessionID string, key string) (string, bool, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := s.rebind("SELECT entry_value FROM session_entry WHERE session_id = ? AND entry_key = ?")
	var value string
	err := s.db.QueryRowContext(ctx, query, sessionID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to read session entry in Storage.Get() function | Error: %v", traceID, err)
		return "", false, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to read session, please try again later.",
		}
	}
	return value, true, nil
}

func (s *SQLStorage) Set(ctx context.Context, sessionID string, key string, value string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	_, err := s.db.ExecContext(ctx, s.upsertQuery(), sessionID, key, value, time.Now().UTC())
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save session entry in Storage.Set() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to save session, please try again later.",
		}
	}
	return nil
}

func (s *SQLStorage) Delete(ctx context.Context, sessionID string, key string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := s.rebind("DELETE FROM session_entry WHERE session_id = ? AND entry_key = ?")
	if _, err := s.db.ExecContext(ctx, query, sessionID, key); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to delete session entry in Storage.Delete() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to update session, please try again later.",
		}
	}
	return nil
}

func (s *SQLStorage) Clear(ctx context.Context, sessionID string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := s.rebind("DELETE FROM session_entry WHERE session_id = ?")
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to clear session in Storage.Clear() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to logout, try again later.",
		}
	}
	return nil
}

// PurgeStale removes records whose newest entry was written before before.
func (s *SQLStorage) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	query := s.rebind(`DELETE FROM session_entry WHERE session_id IN (
        SELECT session_id FROM (
            SELECT session_id FROM session_entry GROUP BY session_id HAVING MAX(updated_at) < ?
        ) AS stale
    )`)

	res, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale sessions: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return purged, nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
