package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// RecordStore provides an in-memory record store for development and testing.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]harvest.Record
}

// NewRecordStore constructs a RecordStore seeded with records.
func NewRecordStore(records ...harvest.BusinessRecord) *RecordStore {
	s := &RecordStore{records: make(map[string]harvest.Record, len(records))}
	for _, rec := range records {
		s.put(rec)
	}
	return s
}

func (s *RecordStore) put(rec harvest.BusinessRecord) {
	if rec.Status == "" {
		rec.Status = harvest.StatusPending
	}
	s.records[rec.ID] = harvest.Record{
		BusinessRecord: rec,
		Emails:         []string{},
		SocialProfiles: harvest.SocialProfiles{},
	}
}

// LoadCSV seeds the store from a CSV with a "Business Name,Website" header.
// Row numbers (starting at 1) become record ids. It returns the number of rows loaded.
func (s *RecordStore) LoadCSV(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	nameCol, siteCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "business name", "businessname", "name":
			nameCol = i
		case "website":
			siteCol = i
		}
	}
	if siteCol < 0 {
		return 0, errors.New("csv has no Website column")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read csv row %d: %w", n+1, err)
		}
		n++
		rec := harvest.BusinessRecord{ID: strconv.Itoa(n)}
		if siteCol < len(row) {
			rec.Website = strings.TrimSpace(row[siteCol])
		}
		if nameCol >= 0 && nameCol < len(row) {
			rec.BusinessName = strings.TrimSpace(row[nameCol])
		}
		s.put(rec)
	}
	return n, nil
}

// FetchPending returns pending records with a website ordered by id.
func (s *RecordStore) FetchPending(_ context.Context, limit int) ([]harvest.BusinessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.BusinessRecord
	for _, rec := range s.sorted() {
		if rec.Status != harvest.StatusPending || !harvest.HasWebsite(rec.Website) {
			continue
		}
		out = append(out, rec.BusinessRecord)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpdateStatus stores the harvest result for id.
func (s *RecordStore) UpdateStatus(_ context.Context, id string, update harvest.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, harvest.ErrNotFound)
	}
	rec.Status = update.Status
	rec.Emails = append([]string{}, update.Emails...)
	rec.SocialProfiles = update.SocialProfiles.Clone()
	scraped := update.ScrapedAt.UTC()
	rec.ScrapedAt = &scraped
	s.records[id] = rec
	return nil
}

// ResetStatus marks every record with a website pending and clears its results.
func (s *RecordStore) ResetStatus(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if !harvest.HasWebsite(rec.Website) {
			continue
		}
		rec.Status = harvest.StatusPending
		rec.Emails = []string{}
		rec.SocialProfiles = harvest.SocialProfiles{}
		rec.ScrapedAt = nil
		s.records[id] = rec
		n++
	}
	return n, nil
}

// List returns the first limit records with websites and the total count.
func (s *RecordStore) List(_ context.Context, limit int) ([]harvest.BusinessRecord, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		out   []harvest.BusinessRecord
		total int64
	)
	for _, rec := range s.sorted() {
		if !harvest.HasWebsite(rec.Website) {
			continue
		}
		total++
		if len(out) < limit {
			out = append(out, rec.BusinessRecord)
		}
	}
	return out, total, nil
}

// Stats counts records by status.
func (s *RecordStore) Stats(_ context.Context) (harvest.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st harvest.Stats
	for _, rec := range s.records {
		st.Total++
		if harvest.HasWebsite(rec.Website) {
			st.WithWebsites++
		}
		if len(rec.SocialProfiles) > 0 {
			st.WithSocial++
		}
		switch rec.Status {
		case harvest.StatusPending:
			st.Pending++
		case harvest.StatusFound:
			st.Found++
		case harvest.StatusChecked:
			st.Checked++
		case harvest.StatusFailed:
			st.Failed++
		case harvest.StatusSkipped:
			st.Skipped++
		}
	}
	return st, nil
}

// Exportable returns copies of records that were harvested or carry social profiles.
func (s *RecordStore) Exportable(_ context.Context) ([]harvest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.Record
	for _, rec := range s.sorted() {
		switch {
		case rec.Status == harvest.StatusFound, rec.Status == harvest.StatusChecked,
			rec.Status == harvest.StatusFailed, len(rec.SocialProfiles) > 0:
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

// Get returns a copy of the record with id.
func (s *RecordStore) Get(id string) (harvest.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return harvest.Record{}, false
	}
	return copyRecord(rec), true
}

// Ping always succeeds.
func (s *RecordStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *RecordStore) Close() error { return nil }

// sorted orders records by numeric id when possible, then lexically.
func (s *RecordStore) sorted() []harvest.Record {
	out := make([]harvest.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i].ID)
		b, errB := strconv.Atoi(out[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyRecord(rec harvest.Record) harvest.Record {
	rec.Emails = append([]string{}, rec.Emails...)
	rec.SocialProfiles = rec.SocialProfiles.Clone()
	if rec.ScrapedAt != nil {
		t := *rec.ScrapedAt
		rec.ScrapedAt = &t
	}
	return rec
}
