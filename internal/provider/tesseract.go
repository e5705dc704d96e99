package provider

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/model"
)

// TesseractProvider is the free local fallback. It runs plain OCR and splits
// the text heuristically: first non-empty line becomes the identity,
// everything after it becomes the free-text body. It never fails on image
// quality; an unreadable photo yields an empty record, not an error.
type TesseractProvider struct {
	binPath     string
	languages   string
	tessdataDir string
}

// NewTesseractProvider creates a TesseractProvider. Empty binPath defaults
// to "tesseract" on PATH; empty languages defaults to "eng".
func NewTesseractProvider(binPath, languages, tessdataDir string) *TesseractProvider {
	if binPath == "" {
		binPath = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	return &TesseractProvider{binPath: binPath, languages: languages, tessdataDir: tessdataDir}
}

// Name implements Provider.
func (p *TesseractProvider) Name() string { return "tesseract" }

// Available implements Provider.
func (p *TesseractProvider) Available() bool {
	_, err := exec.LookPath(p.binPath)
	return err == nil
}

// Extract implements Provider.
func (p *TesseractProvider) Extract(ctx context.Context, img Image, domain model.Domain, _ Profile) (*model.StructuredRecord, *model.ProviderMetadata, error) {
	start := time.Now()
	meta := &model.ProviderMetadata{Provider: p.Name(), Model: "tesseract"}

	if len(img.JPEG) == 0 {
		meta.Latency = time.Since(start)
		return emptyRecord(domain), meta, nil
	}

	out, err := p.runTSV(ctx, img.JPEG)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, newError(p.Name(), ReasonTimeout, err)
		}
		return nil, nil, newError(p.Name(), ReasonTransport, err)
	}
	meta.Latency = time.Since(start)

	lines, meanConf := parseTSV(out)
	rec := ocrRecord(domain, lines)

	zap.L().Debug("tesseract extraction complete",
		zap.String("domain", string(domain)),
		zap.Int("lines", len(lines)),
		zap.Float64("mean_word_confidence", meanConf),
		zap.Duration("latency", meta.Latency),
	)
	return rec, meta, nil
}

// runTSV writes the image to a temp file and runs tesseract in TSV mode so a
// single pass yields both the text and per-word confidences.
func (p *TesseractProvider) runTSV(ctx context.Context, jpeg []byte) (string, error) {
	tmp, err := os.CreateTemp("", "capture-ocr-*.jpg")
	if err != nil {
		return "", eris.Wrap(err, "provider: create temp image")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(jpeg); err != nil {
		tmp.Close()
		return "", eris.Wrap(err, "provider: write temp image")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "provider: close temp image")
	}

	args := []string{tmp.Name(), "stdout", "-l", p.languages}
	if p.tessdataDir != "" {
		args = append(args, "--tessdata-dir", p.tessdataDir)
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, p.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "provider: tesseract failed: %s", strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseTSV reconstructs text lines from tesseract TSV output and returns the
// mean word confidence in 0..1. Word rows are level 5; the conf column is -1
// for structural rows.
func parseTSV(out string) ([]string, float64) {
	var (
		lines    []string
		current  []string
		lineKey  string
		confSum  float64
		confHits int
	)

	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	for i, row := range strings.Split(out, "\n") {
		if i == 0 || strings.TrimSpace(row) == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}

		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		key := strings.Join(cols[1:5], ":")
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, word)

		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			confSum += conf
			confHits++
		}
	}
	flush()

	var meanConf float64
	if confHits > 0 {
		meanConf = confSum / float64(confHits) / 100.0
	}
	return lines, meanConf
}

func ocrRecord(domain model.Domain, lines []string) *model.StructuredRecord {
	rec := emptyRecord(domain)
	if len(lines) == 0 {
		return rec
	}

	rec.Identity = lines[0]
	body := strings.Join(lines[1:], "\n")
	if domain == model.DomainWine {
		rec.Wine.Notes = body
	} else {
		rec.Recipe.Instructions = body
	}
	return rec
}

func emptyRecord(domain model.Domain) *model.StructuredRecord {
	rec := &model.StructuredRecord{Domain: domain}
	if domain == model.DomainWine {
		rec.Wine = &model.WineFields{}
	} else {
		rec.Recipe = &model.RecipeFields{}
	}
	return rec
}
