package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/capture-cli/internal/model"
)

const tsvHeader = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"

func tsvRow(level int, block, par, line, word int, conf, text string) string {
	return fmt.Sprintf("%d\t1\t%d\t%d\t%d\t%d\t10\t10\t50\t20\t%s\t%s", level, block, par, line, word, conf, text)
}

func recipeTSV() string {
	rows := []string{
		tsvHeader,
		tsvRow(1, 0, 0, 0, 0, "-1", ""),
		tsvRow(5, 1, 1, 1, 1, "91", "Tarte"),
		tsvRow(5, 1, 1, 1, 2, "88", "Tatin"),
		tsvRow(5, 1, 2, 1, 1, "85", "Peler"),
		tsvRow(5, 1, 2, 1, 2, "82", "les"),
		tsvRow(5, 1, 2, 1, 3, "90", "pommes"),
		tsvRow(5, 1, 2, 1, 4, "-1", " "),
	}
	return strings.Join(rows, "\n") + "\n"
}

// fakeTesseract writes an executable shell script that prints the given TSV,
// so Extract runs end to end without a real tesseract install.
func fakeTesseract(t *testing.T, tsv string) string {
	t.Helper()
	dir := t.TempDir()

	fixture := filepath.Join(dir, "out.tsv")
	require.NoError(t, os.WriteFile(fixture, []byte(tsv), 0644))

	bin := filepath.Join(dir, "tesseract")
	script := fmt.Sprintf("#!/bin/sh\ncat '%s'\n", fixture)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin
}

func TestTesseractProvider_ExtractRecipe(t *testing.T) {
	t.Parallel()

	p := NewTesseractProvider(fakeTesseract(t, recipeTSV()), "eng+fra", "")
	rec, meta, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, Profile{})
	require.NoError(t, err)

	assert.Equal(t, "Tarte Tatin", rec.Identity)
	require.NotNil(t, rec.Recipe)
	assert.Equal(t, "Peler les pommes", rec.Recipe.Instructions)
	assert.Empty(t, rec.Recipe.Ingredients)

	assert.Equal(t, "tesseract", meta.Provider)
	assert.Zero(t, meta.PromptTokens)
	assert.Zero(t, meta.CompletionTokens)
	assert.Zero(t, meta.CostUSD)
}

func TestTesseractProvider_ExtractWine(t *testing.T) {
	t.Parallel()

	rows := []string{
		tsvHeader,
		tsvRow(5, 1, 1, 1, 1, "80", "Château"),
		tsvRow(5, 1, 1, 1, 2, "78", "Margaux"),
		tsvRow(5, 1, 1, 2, 1, "75", "2015"),
	}
	p := NewTesseractProvider(fakeTesseract(t, strings.Join(rows, "\n")), "fra", "")

	rec, _, err := p.Extract(context.Background(), testImage(), model.DomainWine, Profile{})
	require.NoError(t, err)

	assert.Equal(t, "Château Margaux", rec.Identity)
	require.NotNil(t, rec.Wine)
	assert.Equal(t, "2015", rec.Wine.Notes)
	assert.Nil(t, rec.Wine.Vintage)
}

func TestTesseractProvider_NoTextIsNotAnError(t *testing.T) {
	t.Parallel()

	p := NewTesseractProvider(fakeTesseract(t, tsvHeader+"\n"), "eng", "")
	rec, _, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, Profile{})
	require.NoError(t, err)

	assert.Empty(t, rec.Identity)
	require.NotNil(t, rec.Recipe)
	assert.Empty(t, rec.Recipe.Instructions)
}

func TestTesseractProvider_EmptyImage(t *testing.T) {
	t.Parallel()

	p := NewTesseractProvider("/nonexistent/tesseract", "eng", "")
	rec, meta, err := p.Extract(context.Background(), Image{}, model.DomainWine, Profile{})
	require.NoError(t, err)

	assert.Empty(t, rec.Identity)
	require.NotNil(t, rec.Wine)
	assert.Equal(t, "tesseract", meta.Provider)
}

func TestTesseractProvider_BinaryFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "tesseract")
	script := "#!/bin/sh\necho 'Error: bad image' >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))

	p := NewTesseractProvider(bin, "eng", "")
	_, _, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, Profile{})

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonTransport, extErr.Reason)
	assert.Contains(t, err.Error(), "Error: bad image")
}

func TestTesseractProvider_Timeout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bin := filepath.Join(dir, "tesseract")
	script := "#!/bin/sh\nsleep 5\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewTesseractProvider(bin, "eng", "")
	_, _, err := p.Extract(ctx, testImage(), model.DomainRecipe, Profile{})

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonTimeout, extErr.Reason)
}

func TestTesseractProvider_Available(t *testing.T) {
	t.Parallel()

	p := NewTesseractProvider(fakeTesseract(t, ""), "eng", "")
	assert.True(t, p.Available())

	missing := NewTesseractProvider("/nonexistent/tesseract", "eng", "")
	assert.False(t, missing.Available())
}

func TestTesseractProvider_Defaults(t *testing.T) {
	t.Parallel()

	p := NewTesseractProvider("", "", "")
	assert.Equal(t, "tesseract", p.binPath)
	assert.Equal(t, "eng", p.languages)
}

func TestParseTSV(t *testing.T) {
	t.Parallel()

	lines, conf := parseTSV(recipeTSV())
	require.Equal(t, []string{"Tarte Tatin", "Peler les pommes"}, lines)
	assert.InDelta(t, 0.872, conf, 0.0001)
}

func TestParseTSV_Empty(t *testing.T) {
	t.Parallel()

	lines, conf := parseTSV("")
	assert.Empty(t, lines)
	assert.Zero(t, conf)

	lines, conf = parseTSV(tsvHeader + "\n")
	assert.Empty(t, lines)
	assert.Zero(t, conf)
}

func TestOCRRecord_SplitsBody(t *testing.T) {
	t.Parallel()

	rec := ocrRecord(model.DomainRecipe, []string{"Recette", "battre les œufs", "cuire doucement"})
	assert.Equal(t, "Recette", rec.Identity)
	assert.Equal(t, "battre les œufs\ncuire doucement", rec.Recipe.Instructions)

	wine := ocrRecord(model.DomainWine, []string{"Rioja Reserva"})
	assert.Equal(t, "Rioja Reserva", wine.Identity)
	assert.Empty(t, wine.Wine.Notes)
}
