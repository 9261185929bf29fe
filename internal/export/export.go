// Package export writes harvested records to a blob sink as CSV or XLSX.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// Format selects the artifact encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

func (f Format) contentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// TimeLayout is the Scraped At column format.
const TimeLayout = "2006-01-02 15:04:05"

const sheetName = "Contacts"

// Header lists the export columns in order.
func Header() []string {
	cols := []string{"Business Name", "Website", "Email Status", "Emails", "Scraped At"}
	for _, p := range harvest.Platforms {
		cols = append(cols, platformColumn(p))
	}
	return cols
}

var platformColumns = map[harvest.Platform]string{
	harvest.PlatformFacebook:  "Facebook",
	harvest.PlatformTwitter:   "Twitter",
	harvest.PlatformInstagram: "Instagram",
	harvest.PlatformLinkedIn:  "LinkedIn",
	harvest.PlatformYouTube:   "YouTube",
	harvest.PlatformPinterest: "Pinterest",
	harvest.PlatformTikTok:    "TikTok",
}

func platformColumn(p harvest.Platform) string {
	if c, ok := platformColumns[p]; ok {
		return c
	}
	return string(p)
}

// Row flattens rec into export columns.
func Row(rec harvest.Record) []string {
	scraped := ""
	if rec.ScrapedAt != nil {
		scraped = rec.ScrapedAt.UTC().Format(TimeLayout)
	}
	row := []string{
		rec.BusinessName,
		rec.Website,
		string(rec.Status),
		strings.Join(rec.Emails, ", "),
		scraped,
	}
	for _, p := range harvest.Platforms {
		row = append(row, rec.SocialProfiles[p])
	}
	return row
}

// Encode renders records in the given format.
func Encode(format Format, records []harvest.Record) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(records)
	case FormatXLSX:
		return encodeXLSX(records)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func encodeCSV(records []harvest.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(Row(rec)); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", rec.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeXLSX(records []harvest.Record) (out []byte, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	writeRow := func(n int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}
	if err := writeRow(1, Header()); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	for i, rec := range records {
		if err := writeRow(i+2, Row(rec)); err != nil {
			return nil, fmt.Errorf("write xlsx row %s: %w", rec.ID, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush xlsx: %w", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Source lists the records to export. harvest.AdminStore satisfies it.
type Source interface {
	Exportable(ctx context.Context) ([]harvest.Record, error)
}

// Config controls where exports land.
type Config struct {
	Prefix string
	Format Format
}

// Report describes a finished export.
type Report struct {
	URI    string
	Path   string
	Rows   int
	Format Format
}

// Exporter pulls exportable records and writes one artifact per call.
type Exporter struct {
	source Source
	sink   harvest.BlobStore
	hasher harvest.Hasher
	clock  harvest.Clock
	cfg    Config
	logger *zap.Logger
}

// New returns an Exporter.
func New(source Source, sink harvest.BlobStore, hasher harvest.Hasher, clock harvest.Clock, cfg Config, logger *zap.Logger) (*Exporter, error) {
	if source == nil || sink == nil || hasher == nil {
		return nil, fmt.Errorf("export source, sink and hasher are required")
	}
	if cfg.Format == "" {
		cfg.Format = FormatCSV
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "contacts"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = utcClock{}
	}
	return &Exporter{source: source, sink: sink, hasher: hasher, clock: clock, cfg: cfg, logger: logger}, nil
}

// Export writes the exportable records. format overrides the configured
// format when non-empty. name, when set, replaces the generated object name.
func (e *Exporter) Export(ctx context.Context, format Format, name string) (Report, error) {
	if format == "" {
		format = e.cfg.Format
	}
	records, err := e.source.Exportable(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load exportable records: %w", err)
	}
	data, err := Encode(format, records)
	if err != nil {
		return Report{}, err
	}
	objectPath, err := e.objectPath(format, name, data)
	if err != nil {
		return Report{}, err
	}
	uri, err := e.sink.PutObject(ctx, objectPath, format.contentType(), bytes.NewReader(data))
	if err != nil {
		return Report{}, fmt.Errorf("write export: %w", err)
	}
	e.logger.Info("export written",
		zap.String("uri", uri),
		zap.Int("rows", len(records)),
		zap.String("format", string(format)),
	)
	return Report{URI: uri, Path: objectPath, Rows: len(records), Format: format}, nil
}

func (e *Exporter) objectPath(format Format, name string, data []byte) (string, error) {
	if name != "" {
		if !strings.HasSuffix(strings.ToLower(name), "."+string(format)) {
			name += "." + string(format)
		}
		return path.Join(e.cfg.Prefix, path.Base(name)), nil
	}
	digest, err := e.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash export: %w", err)
	}
	if len(digest) > 12 {
		digest = digest[:12]
	}
	stamp := e.clock.Now().UTC().Format("20060102T150405Z")
	return path.Join(e.cfg.Prefix, fmt.Sprintf("contacts-%s-%s.%s", stamp, digest, format)), nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
