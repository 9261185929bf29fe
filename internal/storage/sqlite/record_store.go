// Package sqlite stores business records in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const hasWebsite = `website IS NOT NULL AND website NOT IN ('', 'N/A', 'n/a')`

const schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id              TEXT PRIMARY KEY,
    businessname    TEXT NOT NULL DEFAULT '',
    website         TEXT,
    emailstatus     TEXT NOT NULL DEFAULT 'pending',
    email           TEXT NOT NULL DEFAULT '[]',
    social_profiles TEXT NOT NULL DEFAULT '{}',
    emailscraped_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(emailstatus);
`

// Config locates the database.
type Config struct {
	Path  string
	Table string
}

// RecordStore implements harvest.AdminStore on SQLite. Emails and social
// profiles are stored as JSON text.
type RecordStore struct {
	db    *sql.DB
	table string
}

// New opens the database at cfg.Path, creating its directory and schema.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	table := cfg.Table
	if table == "" {
		table = "businesses"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writers serialize on the file lock anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &RecordStore{db: db, table: table}, nil
}

// Close closes the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert adds or replaces a record. It is used for seeding.
func (s *RecordStore) Insert(ctx context.Context, rec harvest.BusinessRecord) error {
	status := rec.Status
	if status == "" {
		status = harvest.StatusPending
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (id, businessname, website, emailstatus) VALUES (?, ?, ?, ?)`, s.table),
		rec.ID, rec.BusinessName, rec.Website, string(status),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	return nil
}

// FetchPending returns pending records with a website ordered by id. A limit
// of 0 returns all of them.
func (s *RecordStore) FetchPending(ctx context.Context, limit int) ([]harvest.BusinessRecord, error) {
	query := fmt.Sprintf(`SELECT id, website, businessname, COALESCE(emailstatus, 'pending')
		FROM %s WHERE COALESCE(emailstatus, 'pending') = 'pending' AND %s ORDER BY id`, s.table, hasWebsite)
	if limit <= 0 {
		limit = -1
	}
	records, err := s.queryRecords(ctx, query+" LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	return records, nil
}

// UpdateStatus writes the harvest result fields for id.
func (s *RecordStore) UpdateStatus(ctx context.Context, id string, update harvest.Update) error {
	emails := update.Emails
	if emails == nil {
		emails = []string{}
	}
	emailJSON, err := json.Marshal(emails)
	if err != nil {
		return fmt.Errorf("marshal emails: %w", err)
	}
	social := update.SocialProfiles
	if social == nil {
		social = harvest.SocialProfiles{}
	}
	socialJSON, err := json.Marshal(social)
	if err != nil {
		return fmt.Errorf("marshal social profiles: %w", err)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET emailstatus = ?, email = ?, social_profiles = ?, emailscraped_at = ? WHERE id = ?`, s.table),
		string(update.Status), string(emailJSON), string(socialJSON), update.ScrapedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", id, harvest.ErrNotFound)
	}
	return nil
}

// ResetStatus marks every record with a website pending and clears results.
func (s *RecordStore) ResetStatus(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET emailstatus = 'pending', email = '[]', social_profiles = '{}', emailscraped_at = NULL
		WHERE %s`, s.table, hasWebsite))
	if err != nil {
		return 0, fmt.Errorf("reset status: %w", err)
	}
	return res.RowsAffected()
}

// List returns the first limit records with websites and the total count.
func (s *RecordStore) List(ctx context.Context, limit int) ([]harvest.BusinessRecord, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	var total int64
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table, hasWebsite)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	records, err := s.queryRecords(ctx, fmt.Sprintf(
		`SELECT id, website, businessname, COALESCE(emailstatus, 'pending')
		FROM %s WHERE %s ORDER BY id LIMIT ?`, s.table, hasWebsite), limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return records, total, nil
}

// Stats counts records by status.
func (s *RecordStore) Stats(ctx context.Context) (harvest.Stats, error) {
	query := fmt.Sprintf(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN %[2]s THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN COALESCE(emailstatus, 'pending') = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN emailstatus = 'found' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN emailstatus = 'checked' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN emailstatus = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN emailstatus = 'skipped' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN social_profiles NOT IN ('', '{}') THEN 1 ELSE 0 END), 0)
		FROM %[1]s`, s.table, hasWebsite)
	var st harvest.Stats
	err := s.db.QueryRowContext(ctx, query).Scan(
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
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, COALESCE(website, ''), businessname, COALESCE(emailstatus, 'pending'),
		email, social_profiles, emailscraped_at
		FROM %s
		WHERE emailstatus IN ('found', 'checked', 'failed') OR social_profiles NOT IN ('', '{}')
		ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("query exportable: %w", err)
	}
	defer rows.Close()

	var out []harvest.Record
	for rows.Next() {
		var (
			rec       harvest.Record
			status    string
			emailJSON string
			social    string
			scraped   sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Website, &rec.BusinessName, &status,
			&emailJSON, &social, &scraped); err != nil {
			return nil, fmt.Errorf("scan exportable: %w", err)
		}
		rec.Status = harvest.Status(status)
		if err := json.Unmarshal([]byte(emailJSON), &rec.Emails); err != nil {
			return nil, fmt.Errorf("record %s: decode emails: %w", rec.ID, err)
		}
		rec.SocialProfiles = harvest.SocialProfiles{}
		if social != "" {
			if err := json.Unmarshal([]byte(social), &rec.SocialProfiles); err != nil {
				return nil, fmt.Errorf("record %s: decode social profiles: %w", rec.ID, err)
			}
		}
		if scraped.Valid {
			t := scraped.Time.UTC()
			rec.ScrapedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *RecordStore) queryRecords(ctx context.Context, query string, args ...any) ([]harvest.BusinessRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
			return nil, err
		}
		rec.Status = harvest.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
