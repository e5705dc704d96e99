package refdb

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/fetcher"
	"github.com/tastebase/capture-cli/internal/model"
)

const (
	defaultImportBatchSize = 500

	// defaultPackCode is the bottle-size suffix appended when the dataset
	// carries no 16-digit code: 75cl, the standard bottle.
	defaultPackCode = "00750"
)

// fileDownloader is the slice of the FTP client the importer needs.
type fileDownloader interface {
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ImportOptions configures a catalog import run.
type ImportOptions struct {
	Sheet     string // XLSX sheet name; empty means the first sheet
	BatchSize int
	PackCode  string // 5-digit bottle-size suffix for synthesized codes
	TempDir   string

	// HTTP and FTP override the fetchers, for tests.
	HTTP fetcher.Fetcher
	FTP  fileDownloader
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Source     string
	Rows       int64 // upserted
	Skipped    int   // rows without a usable code or name
	Duplicates int   // rows repeating an already-seen code16
	Unchanged  bool  // upstream file unchanged since the last run
	Took       time.Duration
}

// Importer bulk-loads a wine catalog dataset into a Store. Sources may be
// local paths or HTTP(S)/FTP URLs pointing at CSV or XLSX files, optionally
// zipped. HTTP sources are fetched conditionally: when the upstream file is
// unchanged since the run recorded in ImportMeta, the import is skipped.
type Importer struct {
	store     Store
	http      fetcher.Fetcher
	ftp       fileDownloader
	sheet     string
	batchSize int
	packCode  string
	tempDir   string
}

// NewImporter creates an Importer with defaults filled in.
func NewImporter(store Store, opts ImportOptions) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultImportBatchSize
	}
	if opts.PackCode == "" {
		opts.PackCode = defaultPackCode
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.HTTP == nil {
		opts.HTTP = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
	}
	if opts.FTP == nil {
		opts.FTP = fetcher.NewFTPFetcher(fetcher.FTPOptions{})
	}
	return &Importer{
		store:     store,
		http:      opts.HTTP,
		ftp:       opts.FTP,
		sheet:     opts.Sheet,
		batchSize: opts.BatchSize,
		packCode:  opts.PackCode,
		tempDir:   opts.TempDir,
	}
}

// Run imports the dataset at source into the store.
func (imp *Importer) Run(ctx context.Context, source string) (*ImportResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("source", source))

	path, fresh, unchanged, cleanup, err := imp.materialize(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if unchanged {
		log.Info("refdb import: source unchanged, skipping")
		return &ImportResult{Source: source, Unchanged: true, Took: time.Since(start)}, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		extracted, err := fetcher.ExtractZIPSingle(path, imp.tempDir)
		if err != nil {
			return nil, eris.Wrap(err, "refdb: extract archive")
		}
		defer os.Remove(extracted) //nolint:errcheck
		path = extracted
	}

	res, err := imp.load(ctx, path)
	if err != nil {
		return nil, err
	}
	res.Source = source

	meta := ImportMeta{
		Source:       source,
		ETag:         fresh.ETag,
		LastModified: fresh.LastModified,
		Rows:         res.Rows,
		ImportedAt:   time.Now().UTC(),
	}
	if err := imp.store.SetImportMeta(ctx, meta); err != nil {
		return nil, eris.Wrap(err, "refdb: record import meta")
	}

	res.Took = time.Since(start)
	log.Info("refdb import: complete",
		zap.Int64("rows", res.Rows),
		zap.Int("skipped", res.Skipped),
		zap.Int("duplicates", res.Duplicates),
		zap.Duration("took", res.Took),
	)
	return res, nil
}

// materialize resolves the source to a local file. The cleanup func removes
// any file the importer downloaded; it is a no-op for local sources.
func (imp *Importer) materialize(ctx context.Context, source string) (string, fetcher.Conditional, bool, func(), error) {
	noop := func() {}

	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return source, fetcher.Conditional{}, false, noop, nil
	}

	switch u.Scheme {
	case "http", "https":
		var cond fetcher.Conditional
		prev, err := imp.store.GetImportMeta(ctx, source)
		if err != nil {
			return "", fetcher.Conditional{}, false, noop, err
		}
		if prev != nil {
			cond = fetcher.Conditional{ETag: prev.ETag, LastModified: prev.LastModified}
		}

		body, fresh, changed, err := imp.http.DownloadIfChanged(ctx, source, cond)
		if err != nil {
			return "", fetcher.Conditional{}, false, noop, eris.Wrap(err, "refdb: download source")
		}
		if !changed {
			return "", cond, true, noop, nil
		}
		defer body.Close() //nolint:errcheck

		path := filepath.Join(imp.tempDir, filepath.Base(u.Path))
		out, err := os.Create(path)
		if err != nil {
			return "", fetcher.Conditional{}, false, noop, eris.Wrap(err, "refdb: create temp file")
		}
		if _, err := io.Copy(out, body); err != nil {
			out.Close()     //nolint:errcheck
			os.Remove(path) //nolint:errcheck
			return "", fetcher.Conditional{}, false, noop, eris.Wrap(err, "refdb: write temp file")
		}
		if err := out.Close(); err != nil {
			return "", fetcher.Conditional{}, false, noop, eris.Wrap(err, "refdb: close temp file")
		}
		return path, fresh, false, func() { os.Remove(path) }, nil //nolint:errcheck

	case "ftp":
		path := filepath.Join(imp.tempDir, filepath.Base(u.Path))
		if _, err := imp.ftp.DownloadToFile(ctx, source, path); err != nil {
			return "", fetcher.Conditional{}, false, noop, eris.Wrap(err, "refdb: download source")
		}
		return path, fetcher.Conditional{}, false, func() { os.Remove(path) }, nil //nolint:errcheck

	default:
		// A bare path on Windows parses with a drive-letter scheme; anything
		// that is not a URL we know is treated as a local file.
		return source, fetcher.Conditional{}, false, noop, nil
	}
}

// load streams the file and upserts rows in batches. The first row is the
// header; remaining rows become ReferenceRecords.
func (imp *Importer) load(ctx context.Context, path string) (*ImportResult, error) {
	rowCh, errCh, closeFile, err := imp.stream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeFile()

	res := &ImportResult{}
	now := time.Now().UTC()
	seen := make(map[string]struct{})
	batch := make([]model.ReferenceRecord, 0, imp.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := imp.store.UpsertBatch(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "refdb: upsert batch")
		}
		res.Rows += n
		zap.L().Debug("refdb import: batch upserted", zap.Int64("total_rows", res.Rows))
		batch = batch[:0]
		return nil
	}

	var cols map[string]int
	for row := range rowCh {
		if cols == nil {
			cols = mapHeader(row)
			if _, ok := cols["lwin"]; !ok {
				if _, ok := cols["code7"]; !ok {
					drain(rowCh)
					return nil, eris.New("refdb: source has no LWIN or CODE7 column")
				}
			}
			continue
		}

		rec, ok := imp.parseRow(row, cols, now)
		if !ok {
			res.Skipped++
			continue
		}
		if _, dup := seen[rec.Code16]; dup {
			res.Duplicates++
			continue
		}
		seen[rec.Code16] = struct{}{}

		batch = append(batch, rec)
		if len(batch) >= imp.batchSize {
			if err := flush(); err != nil {
				drain(rowCh)
				return nil, err
			}
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return res, nil
}

func (imp *Importer) stream(ctx context.Context, path string) (<-chan []string, <-chan error, func(), error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rowCh, errCh := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{SheetName: imp.sheet})
		return rowCh, errCh, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "refdb: open source file")
	}
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		TrimSpace:  true,
		LazyQuotes: true,
	})
	return rowCh, errCh, func() { f.Close() }, nil //nolint:errcheck
}

// parseRow maps one dataset row to a ReferenceRecord. Rows without a 7-digit
// base code or without any name are unusable and reported as skipped.
func (imp *Importer) parseRow(row []string, cols map[string]int, now time.Time) (model.ReferenceRecord, bool) {
	code := NormalizeCode(col(row, cols, "lwin", "code7"))
	if len(code) < 7 {
		return model.ReferenceRecord{}, false
	}

	rec := model.ReferenceRecord{
		Code7:       code[:7],
		DisplayName: col(row, cols, "display_name", "displayname"),
		Producer:    col(row, cols, "producer_name", "producer"),
		Wine:        col(row, cols, "wine"),
		Country:     col(row, cols, "country"),
		Region:      col(row, cols, "region"),
		SubRegion:   col(row, cols, "sub_region", "subregion"),
		Site:        col(row, cols, "site"),
		Colour:      col(row, cols, "colour", "color"),
		Type:        col(row, cols, "type"),
		Vintage:     parseVintage(col(row, cols, "vintage")),
		ImportedAt:  now,
	}

	if rec.DisplayName == "" && rec.Wine == "" {
		return model.ReferenceRecord{}, false
	}
	if rec.DisplayName == "" {
		rec.DisplayName = strings.TrimSuffix(rec.Producer+", "+rec.Wine, ", ")
	}

	// Some exports carry full 11- or 16-digit codes in the LWIN column.
	if len(code) >= 11 {
		rec.Code11 = code[:11]
	}
	if len(code) == 16 {
		rec.Code16 = code
	}
	if c := NormalizeCode(col(row, cols, "lwin11", "code11")); len(c) == 11 {
		rec.Code11 = c
	}
	if c := NormalizeCode(col(row, cols, "lwin16", "code16")); len(c) == 16 {
		rec.Code16 = c
	}
	if rec.Code11 == "" {
		rec.Code11 = rec.Code7 + vintageDigits(rec.Vintage)
	}
	if rec.Code16 == "" {
		rec.Code16 = rec.Code11 + imp.packCode
	}

	rec.ID = rec.Code16
	rec.NormName = Normalize(firstOf(rec.Wine, rec.DisplayName))
	rec.NormProducer = Normalize(rec.Producer)
	return rec, true
}

// mapHeader builds a lowercased column name → index map. Spaces become
// underscores so "Sub Region" and "SUB_REGION" read the same.
func mapHeader(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		m[key] = i
	}
	return m
}

// col returns the first non-empty value among the named columns.
func col(row []string, cols map[string]int, names ...string) string {
	for _, name := range names {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			return v
		}
	}
	return ""
}

// parseVintage reads a 4-digit year, treating NV markers and junk as nil.
func parseVintage(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nv") {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1800 || v > 2100 {
		return nil
	}
	return &v
}

func vintageDigits(vintage *int) string {
	if vintage == nil {
		return "0000"
	}
	return fmt.Sprintf("%04d", *vintage)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func drain(rowCh <-chan []string) {
	for range rowCh { //nolint:revive
	}
}
