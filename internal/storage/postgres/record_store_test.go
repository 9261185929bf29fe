package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

func newMockStore(t *testing.T) (*RecordStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewRecordStoreWithPool(mock, "businesses")
	require.NoError(t, err)
	return store, mock
}

func TestNewRecordStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "businesses; DROP TABLE x")
	require.Error(t, err)

	_, err = NewRecordStoreWithPool(nil, "businesses")
	require.Error(t, err)

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
}

func TestNewRecordStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStore(context.Background(), RecordStoreConfig{}, nil)
	require.Error(t, err)
}

func TestFetchPendingAppliesLimit(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "website", "businessname", "emailstatus"}).
		AddRow("1", "example.com", "Example", "pending").
		AddRow("2", "https://acme.test", "Acme", "pending")
	mock.ExpectQuery("SELECT id, website .* FROM businesses .*emailstatus.*LIMIT \\$1").
		WithArgs(2).
		WillReturnRows(rows)

	records, err := store.FetchPending(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, harvest.BusinessRecord{
		ID: "1", Website: "example.com", BusinessName: "Example", Status: harvest.StatusPending,
	}, records[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPendingWithoutLimit(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("ORDER BY id$").
		WillReturnRows(pgxmock.NewRows([]string{"id", "website", "businessname", "emailstatus"}))

	records, err := store.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPendingWrapsQueryError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT id").WillReturnError(boom)

	_, err := store.FetchPending(context.Background(), 5)
	require.ErrorIs(t, err, boom)
}

func TestUpdateStatusWritesFields(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	update := harvest.Update{
		Status: harvest.StatusFound,
		Emails: []string{"info@example.com"},
		SocialProfiles: harvest.SocialProfiles{
			harvest.PlatformFacebook: "https://facebook.com/example",
		},
		ScrapedAt: now,
	}
	mock.ExpectExec("UPDATE businesses").
		WithArgs("7", "found", []string{"info@example.com"},
			[]byte(`{"facebook":"https://facebook.com/example"}`), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateStatus(context.Background(), "7", update))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusNormalizesNilSlices(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE businesses").
		WithArgs("7", "checked", []string{}, []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateStatus(context.Background(), "7", harvest.Update{Status: harvest.StatusChecked})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingRecord(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE businesses").
		WithArgs("404", "failed", []string{}, []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateStatus(context.Background(), "404", harvest.Update{Status: harvest.StatusFailed})
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestResetStatusReturnsRowsAffected(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE businesses\\s+SET emailstatus = 'pending'").
		WillReturnResult(pgxmock.NewResult("UPDATE", 42))

	n, err := store.ResetStatus(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListReturnsTotal(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM businesses").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery("LIMIT \\$1").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "website", "businessname", "emailstatus"}).
			AddRow("1", "example.com", "Example", "found"))

	records, total, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, records, 1)
	require.Equal(t, harvest.StatusFound, records[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsScansCounts(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("FILTER").
		WillReturnRows(pgxmock.NewRows([]string{
			"total", "with_websites", "pending", "found", "checked", "failed", "skipped", "with_social",
		}).AddRow(int64(10), int64(8), int64(3), int64(2), int64(1), int64(1), int64(1), int64(4)))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, harvest.Stats{
		Total: 10, WithWebsites: 8, Pending: 3, Found: 2,
		Checked: 1, Failed: 1, Skipped: 1, WithSocial: 4,
	}, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportableDecodesRows(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	scraped := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "website", "businessname", "emailstatus", "email", "social_profiles", "emailscraped_at",
	}).
		AddRow("1", "example.com", "Example", "found", []string{"info@example.com"},
			[]byte(`{"linkedin":"https://linkedin.com/company/example"}`), &scraped).
		AddRow("2", "acme.test", "Acme", "pending", []string{}, []byte(`{}`), (*time.Time)(nil))
	mock.ExpectQuery("emailstatus IN").WillReturnRows(rows)

	records, err := store.Exportable(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{"info@example.com"}, records[0].Emails)
	require.Equal(t, "https://linkedin.com/company/example", records[0].SocialProfiles[harvest.PlatformLinkedIn])
	require.NotNil(t, records[0].ScrapedAt)
	require.True(t, scraped.Equal(*records[0].ScrapedAt))
	require.Nil(t, records[1].ScrapedAt)
	require.Empty(t, records[1].SocialProfiles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesTable(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS businesses").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, store.Ping(context.Background()))
}
