package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/hash/sha256"
	"github.com/JakeFAU/contact-harvester/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeSource struct {
	records []harvest.Record
	err     error
}

func (f fakeSource) Exportable(context.Context) ([]harvest.Record, error) {
	return f.records, f.err
}

func sampleRecords() []harvest.Record {
	scraped := time.Date(2024, 3, 1, 12, 30, 45, 0, time.FixedZone("EST", -5*3600))
	return []harvest.Record{
		{
			BusinessRecord: harvest.BusinessRecord{
				ID: "1", BusinessName: "Acme, Inc.", Website: "https://acme.test", Status: harvest.StatusFound,
			},
			Emails: []string{"info@acme.test", "sales@acme.test"},
			SocialProfiles: harvest.SocialProfiles{
				harvest.PlatformFacebook: "https://facebook.com/acme",
				harvest.PlatformTikTok:   "https://tiktok.com/@acme",
			},
			ScrapedAt: &scraped,
		},
		{
			BusinessRecord: harvest.BusinessRecord{
				ID: "2", BusinessName: "Quiet Co", Website: "quiet.test", Status: harvest.StatusChecked,
			},
		},
	}
}

func TestHeaderOrder(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{
		"Business Name", "Website", "Email Status", "Emails", "Scraped At",
		"Facebook", "Twitter", "Instagram", "LinkedIn", "YouTube", "Pinterest", "TikTok",
	}, Header())
}

func TestRowFlattensRecord(t *testing.T) {
	t.Parallel()

	row := Row(sampleRecords()[0])
	require.Equal(t, "Acme, Inc.", row[0])
	require.Equal(t, "found", row[2])
	require.Equal(t, "info@acme.test, sales@acme.test", row[3])
	require.Equal(t, "2024-03-01 17:30:45", row[4], "scraped at is rendered in UTC")
	require.Equal(t, "https://facebook.com/acme", row[5])
	require.Equal(t, "", row[6])
	require.Equal(t, "https://tiktok.com/@acme", row[11])

	empty := Row(sampleRecords()[1])
	require.Equal(t, "", empty[3])
	require.Equal(t, "", empty[4])
}

func TestEncodeCSV(t *testing.T) {
	t.Parallel()

	data, err := Encode(FormatCSV, sampleRecords())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, Header(), rows[0])
	require.Equal(t, "Acme, Inc.", rows[1][0])
	require.Equal(t, "Quiet Co", rows[2][0])
}

func TestEncodeXLSX(t *testing.T) {
	t.Parallel()

	data, err := Encode(FormatXLSX, sampleRecords())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, Header(), rows[0])
	require.Equal(t, "info@acme.test, sales@acme.test", rows[1][3])
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)

	_, err = ParseFormat("parquet")
	require.Error(t, err)
}

func TestExporterGeneratesObjectName(t *testing.T) {
	t.Parallel()

	sink := memory.NewBlobStore()
	now := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	exp, err := New(fakeSource{records: sampleRecords()}, sink, sha256.New(), fixedClock{now: now},
		Config{Prefix: "contacts", Format: FormatCSV}, nil)
	require.NoError(t, err)

	report, err := exp.Export(context.Background(), "", "")
	require.NoError(t, err)
	require.Equal(t, 2, report.Rows)
	require.Regexp(t, regexp.MustCompile(`^contacts/contacts-20240302T090000Z-[0-9a-f]{12}\.csv$`), report.Path)
	require.Equal(t, "memory://"+report.Path, report.URI)

	data, contentType, ok := sink.Object(report.Path)
	require.True(t, ok)
	require.Equal(t, "text/csv", contentType)

	want, err := Encode(FormatCSV, sampleRecords())
	require.NoError(t, err)
	require.Equal(t, want, data)
}

func TestExporterHonorsNameAndFormat(t *testing.T) {
	t.Parallel()

	sink := memory.NewBlobStore()
	exp, err := New(fakeSource{records: sampleRecords()}, sink, sha256.New(), nil, Config{}, nil)
	require.NoError(t, err)

	report, err := exp.Export(context.Background(), FormatXLSX, "../weekly")
	require.NoError(t, err)
	require.Equal(t, "contacts/weekly.xlsx", report.Path)
	require.Equal(t, FormatXLSX, report.Format)
}

func TestExporterPropagatesSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	exp, err := New(fakeSource{err: boom}, memory.NewBlobStore(), sha256.New(), nil, Config{}, nil)
	require.NoError(t, err)

	_, err = exp.Export(context.Background(), "", "")
	require.ErrorIs(t, err, boom)
}
