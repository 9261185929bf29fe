package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/app"
	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/config"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	pubmemory "github.com/JakeFAU/contact-harvester/internal/publisher/memory"
	"github.com/JakeFAU/contact-harvester/internal/storage/memory"
)

const homePage = `<html><body>
<p>Acme Plumbing serves the whole county.</p>
<footer><a href="mailto:hello@acmeplumbing.co.uk">Email us</a></footer>
</body></html>`

const contactPage = `<html><body>
<h1>Contact</h1>
<p>Sales enquiries: sales@acmeplumbing.co.uk</p>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(homePage))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(contactPage))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Headless.Enabled = false
	cfg.Harvest.Concurrency = 2
	cfg.Harvest.ContactDelayMinMs = 0
	cfg.Harvest.ContactDelayMaxMs = 0
	cfg.Export.Sink = "memory"
	cfg.PubSub.Topic = "harvest-events"
	return cfg
}

func TestNewSeedsMemoryStoreFromCSV(t *testing.T) {
	t.Parallel()
	seed := filepath.Join(t.TempDir(), "businesses.csv")
	require.NoError(t, os.WriteFile(seed, []byte("Business Name,Website\nAcme,acme.co.uk\nNo Site,N/A\n"), 0o600))

	cfg := testConfig()
	cfg.Store.SeedFile = seed
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	stats, err := a.Store().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.WithWebsites)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestNewFailsOnMissingSeedFile(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Store.SeedFile = filepath.Join(t.TempDir(), "missing.csv")
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "open seed file")
}

func TestNewOpensSQLiteStore(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "harvester.db")
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Store().Ping(context.Background()))
	require.NoError(t, a.Close())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Store.Driver = "mysql"
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown store driver")
}

func TestRunHarvestsPendingRecords(t *testing.T) {
	t.Parallel()
	site := newSite(t)
	store := memory.NewRecordStore(
		harvest.BusinessRecord{ID: "1", BusinessName: "Acme Plumbing", Website: site.URL},
		harvest.BusinessRecord{ID: "2", BusinessName: "No Site", Website: "n/a"},
	)
	events := pubmemory.New(10, zap.NewNop())
	clock := system.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	a, err := app.New(context.Background(), testConfig(), zap.NewNop(),
		app.WithStore(store),
		app.WithPublisher(events),
		app.WithClock(clock),
	)
	require.NoError(t, err)

	summary, err := a.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Found)
	assert.False(t, summary.HasFailures())
	assert.False(t, summary.Interrupted)

	rec, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, harvest.StatusFound, rec.Status)
	assert.ElementsMatch(t, []string{"hello@acmeplumbing.co.uk", "sales@acmeplumbing.co.uk"}, rec.Emails)
	require.NotNil(t, rec.ScrapedAt)
	assert.True(t, rec.ScrapedAt.Equal(clock.Now()))

	untouched, ok := store.Get("2")
	require.True(t, ok)
	assert.Equal(t, harvest.StatusPending, untouched.Status)

	published := events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "1", published[0].RecordID)
	assert.Equal(t, harvest.StatusFound, published[0].Status)
	assert.NotEmpty(t, published[0].RunID)
}

func TestRunWithNothingPending(t *testing.T) {
	t.Parallel()
	store := memory.NewRecordStore(harvest.BusinessRecord{ID: "1", Website: "acme.co.uk", Status: harvest.StatusFound})
	a, err := app.New(context.Background(), testConfig(), zap.NewNop(), app.WithStore(store))
	require.NoError(t, err)

	summary, err := a.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.Processed)
}

func TestDryRunLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	site := newSite(t)
	store := memory.NewRecordStore(harvest.BusinessRecord{ID: "1", Website: site.URL})
	a, err := app.New(context.Background(), testConfig(), zap.NewNop(), app.WithStore(store))
	require.NoError(t, err)

	result, err := a.DryRun(context.Background(), site.URL, "Acme Plumbing")
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusFound, result.Status)
	require.NotEmpty(t, result.Scored)
	assert.Equal(t, result.Emails[0], result.Scored[0].Address)

	rec, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, harvest.StatusPending, rec.Status)
	assert.Empty(t, rec.Emails)
}

func TestDryRunInvalidWebsiteIsSkipped(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)

	result, err := a.DryRun(context.Background(), "not a website", "")
	require.NoError(t, err)
	assert.Equal(t, harvest.StatusSkipped, result.Status)
	assert.ErrorIs(t, result.Err, harvest.ErrInvalidWebsite)
}

func TestExporterWritesHarvestedRecords(t *testing.T) {
	t.Parallel()
	site := newSite(t)
	store := memory.NewRecordStore(harvest.BusinessRecord{ID: "1", BusinessName: "Acme Plumbing", Website: site.URL})
	sink := memory.NewBlobStore()
	a, err := app.New(context.Background(), testConfig(), zap.NewNop(), app.WithStore(store), app.WithSink(sink))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), 0)
	require.NoError(t, err)

	exporter, err := a.Exporter()
	require.NoError(t, err)
	report, err := exporter.Export(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rows)
	assert.Len(t, sink.Paths(), 1)

	data, contentType, ok := sink.Object(report.Path)
	require.True(t, ok)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(data), "Acme Plumbing")
}

func TestResetStatusReturnsRecordsToPending(t *testing.T) {
	t.Parallel()
	store := memory.NewRecordStore(
		harvest.BusinessRecord{ID: "1", Website: "acme.co.uk", Status: harvest.StatusFound},
		harvest.BusinessRecord{ID: "2", Website: "", Status: harvest.StatusSkipped},
	)
	a, err := app.New(context.Background(), testConfig(), zap.NewNop(), app.WithStore(store))
	require.NoError(t, err)

	n, err := a.ResetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, _ := store.Get("1")
	assert.Equal(t, harvest.StatusPending, rec.Status)
	rec, _ = store.Get("2")
	assert.Equal(t, harvest.StatusSkipped, rec.Status)
}
