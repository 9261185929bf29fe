// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/retry"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "businesses"

// hasWebsite is the filter shared by every query that needs a usable website.
const hasWebsite = `website IS NOT NULL AND website NOT IN ('', 'N/A', 'n/a')`

// RecordStoreConfig controls the Postgres connection pool.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectAttempts int
	ConnectBackoff  time.Duration
	Migrate         bool
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// RecordStore implements harvest.AdminStore on a Postgres table.
type RecordStore struct {
	pool  dbPool
	table string
}

// NewRecordStore connects to Postgres, retrying with backoff, and optionally
// creates the table.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig, logger *zap.Logger) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	var pool *pgxpool.Pool
	policy := retry.NewExponentialPolicy(cfg.ConnectAttempts, cfg.ConnectBackoff, 0)
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		pool = p
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		logger.Warn("postgres connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}

	store := &RecordStore{pool: pool, table: table}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool dbPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Migrate creates the table when it does not exist.
func (s *RecordStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	businessname TEXT NOT NULL DEFAULT '',
	website TEXT,
	emailstatus TEXT NOT NULL DEFAULT 'pending',
	email TEXT[] NOT NULL DEFAULT '{}',
	social_profiles JSONB NOT NULL DEFAULT '{}'::jsonb,
	emailscraped_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// FetchPending returns up to limit pending records with a usable website,
// ordered by id. A limit of 0 returns all of them.
func (s *RecordStore) FetchPending(ctx context.Context, limit int) ([]harvest.BusinessRecord, error) {
	query := fmt.Sprintf(`
SELECT id, website, COALESCE(businessname, ''), COALESCE(emailstatus, 'pending')
FROM %s
WHERE COALESCE(emailstatus, 'pending') = 'pending' AND %s
ORDER BY id`, s.table, hasWebsite)
	var args []any
	if limit > 0 {
		query += "\nLIMIT $1"
		args = append(args, limit)
	}
	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	return records, nil
}

// UpdateStatus writes the harvest result fields for id.
func (s *RecordStore) UpdateStatus(ctx context.Context, id string, update harvest.Update) error {
	social, err := json.Marshal(socialOrEmpty(update.SocialProfiles))
	if err != nil {
		return fmt.Errorf("marshal social profiles: %w", err)
	}
	emails := update.Emails
	if emails == nil {
		emails = []string{}
	}
	query := fmt.Sprintf(`
UPDATE %s
SET emailstatus = $2, email = $3, social_profiles = $4, emailscraped_at = $5
WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, string(update.Status), emails, social, update.ScrapedAt)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", id, harvest.ErrNotFound)
	}
	return nil
}

// ResetStatus marks every record with a website pending again and clears its results.
func (s *RecordStore) ResetStatus(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET emailstatus = 'pending', email = '{}', social_profiles = '{}'::jsonb, emailscraped_at = NULL
WHERE %s`, s.table, hasWebsite)
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns the first limit records with websites and the total count.
func (s *RecordStore) List(ctx context.Context, limit int) ([]harvest.BusinessRecord, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table, hasWebsite)
	if err := s.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	query := fmt.Sprintf(`
SELECT id, website, COALESCE(businessname, ''), COALESCE(emailstatus, 'pending')
FROM %s
WHERE %s
ORDER BY id
LIMIT $1`, s.table, hasWebsite)
	records, err := s.queryRecords(ctx, query, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return records, total, nil
}

// Stats counts records by status.
func (s *RecordStore) Stats(ctx context.Context) (harvest.Stats, error) {
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE %[2]s),
	COUNT(*) FILTER (WHERE COALESCE(emailstatus, 'pending') = 'pending'),
	COUNT(*) FILTER (WHERE emailstatus = 'found'),
	COUNT(*) FILTER (WHERE emailstatus = 'checked'),
	COUNT(*) FILTER (WHERE emailstatus = 'failed'),
	COUNT(*) FILTER (WHERE emailstatus = 'skipped'),
	COUNT(*) FILTER (WHERE social_profiles IS NOT NULL AND social_profiles <> '{}'::jsonb)
FROM %[1]s`, s.table, hasWebsite)
	var st harvest.Stats
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.Total, &st.WithWebsites, &st.Pending, &st.Found,
		&st.Checked, &st.Failed, &st.Skipped, &st.WithSocial,
	)
	if err != nil {
		return harvest.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Exportable returns records that were harvested or carry social profiles.
func (s *RecordStore) Exportable(ctx context.Context) ([]harvest.Record, error) {
	query := fmt.Sprintf(`
SELECT id, COALESCE(website, ''), COALESCE(businessname, ''), COALESCE(emailstatus, 'pending'),
	email, social_profiles, emailscraped_at
FROM %s
WHERE emailstatus IN ('found', 'checked', 'failed')
	OR (social_profiles IS NOT NULL AND social_profiles <> '{}'::jsonb)
ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query exportable: %w", err)
	}
	defer rows.Close()

	var out []harvest.Record
	for rows.Next() {
		var (
			rec    harvest.Record
			status string
			emails []string
			social []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Website, &rec.BusinessName, &status,
			&emails, &social, &rec.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan exportable: %w", err)
		}
		rec.Status = harvest.Status(status)
		rec.Emails = emails
		if rec.SocialProfiles, err = decodeSocial(social); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exportable: %w", err)
	}
	return out, nil
}

func (s *RecordStore) queryRecords(ctx context.Context, query string, args ...any) ([]harvest.BusinessRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []harvest.BusinessRecord
	for rows.Next() {
		var (
			rec    harvest.BusinessRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.Website, &rec.BusinessName, &status); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = harvest.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func socialOrEmpty(p harvest.SocialProfiles) harvest.SocialProfiles {
	if p == nil {
		return harvest.SocialProfiles{}
	}
	return p
}

func decodeSocial(raw []byte) (harvest.SocialProfiles, error) {
	out := harvest.SocialProfiles{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode social profiles: %w", err)
	}
	return out, nil
}
