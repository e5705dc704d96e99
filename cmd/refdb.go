package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/internal/refdb"
)

var refdbCmd = &cobra.Command{
	Use:   "refdb",
	Short: "Manage the wine reference catalog",
}

var (
	refdbImportSheet string
	refdbImportBatch int
)

var refdbImportCmd = &cobra.Command{
	Use:   "import [source]",
	Short: "Import the reference catalog from an XLSX export",
	Long:  "Fetches the catalog spreadsheet from a URL, FTP address, or local path and upserts its rows. With no argument the configured CAPTURE_REFDB_SOURCE_URL is used.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		source := cfg.Refdb.SourceURL
		if len(args) > 0 {
			source = args[0]
		}
		if source == "" {
			return eris.New("import source is required (argument or CAPTURE_REFDB_SOURCE_URL)")
		}

		st, err := initRefdb(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		sheet := cfg.Refdb.Sheet
		if refdbImportSheet != "" {
			sheet = refdbImportSheet
		}
		batch := cfg.Refdb.BatchSize
		if refdbImportBatch > 0 {
			batch = refdbImportBatch
		}

		imp := refdb.NewImporter(st, refdb.ImportOptions{
			Sheet:     sheet,
			BatchSize: batch,
		})

		res, err := imp.Run(ctx, source)
		if err != nil {
			return eris.Wrap(err, "refdb import")
		}

		if res.Unchanged {
			zap.L().Info("reference catalog unchanged since last import",
				zap.String("source", res.Source),
			)
			return nil
		}

		zap.L().Info("import complete",
			zap.String("source", res.Source),
			zap.Int64("rows", res.Rows),
			zap.Int("skipped", res.Skipped),
			zap.Int("duplicates", res.Duplicates),
			zap.Duration("took", res.Took),
		)
		return nil
	},
}

var (
	lookupCode     string
	lookupName     string
	lookupProducer string
	lookupVintage  int
	lookupLimit    int
)

var refdbLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up reference records by code or identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initRefdb(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		refs, err := lookupReferences(ctx, st, lookupCode, lookupName, lookupProducer, lookupVintage, lookupLimit)
		if err != nil {
			return err
		}

		if len(refs) == 0 {
			zap.L().Info("no matching reference records")
			return nil
		}

		formatReferences(os.Stdout, refs)
		return nil
	},
}

func init() {
	refdbImportCmd.Flags().StringVar(&refdbImportSheet, "sheet", "", "XLSX sheet name (default from config)")
	refdbImportCmd.Flags().IntVar(&refdbImportBatch, "batch-size", 0, "upsert batch size (default from config)")

	refdbLookupCmd.Flags().StringVar(&lookupCode, "code", "", "catalog code (7, 11, or 16 digits)")
	refdbLookupCmd.Flags().StringVar(&lookupName, "name", "", "wine name")
	refdbLookupCmd.Flags().StringVar(&lookupProducer, "producer", "", "producer name")
	refdbLookupCmd.Flags().IntVar(&lookupVintage, "vintage", 0, "vintage year, with --name")
	refdbLookupCmd.Flags().IntVar(&lookupLimit, "limit", 20, "max records to return")

	refdbCmd.AddCommand(refdbImportCmd)
	refdbCmd.AddCommand(refdbLookupCmd)
	rootCmd.AddCommand(refdbCmd)
}

// lookupReferences picks the lookup strategy from whichever key was given:
// code beats name, name beats producer.
func lookupReferences(ctx context.Context, st refdb.Store, code, name, producer string, vintage, limit int) ([]model.ReferenceRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	switch {
	case code != "":
		norm := refdb.NormalizeCode(code)
		var tier refdb.CodeTier
		switch len(norm) {
		case 16:
			tier = refdb.CodeTier16
		case 11:
			tier = refdb.CodeTier11
		case 7:
			tier = refdb.CodeTier7
		default:
			return nil, eris.Errorf("code %q must have 7, 11, or 16 digits", code)
		}
		refs, err := st.FindByCode(ctx, tier, norm)
		if err != nil {
			return nil, eris.Wrap(err, "find by code")
		}
		return refs, nil
	case name != "":
		var v *int
		if vintage > 0 {
			v = &vintage
		}
		refs, err := st.FindByIdentity(ctx, refdb.Normalize(name), refdb.Normalize(producer), v, limit)
		if err != nil {
			return nil, eris.Wrap(err, "find by identity")
		}
		return refs, nil
	case producer != "":
		refs, err := st.FindByProducer(ctx, refdb.Normalize(producer), limit)
		if err != nil {
			return nil, eris.Wrap(err, "find by producer")
		}
		return refs, nil
	default:
		return nil, eris.New("one of --code, --name, or --producer is required")
	}
}

// formatReferences writes a tabular representation of reference records to w.
func formatReferences(out io.Writer, refs []model.ReferenceRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNAME\tPRODUCER\tVINTAGE\tREGION\tCOLOUR")

	for _, ref := range refs {
		code := ref.Code16
		if code == "" {
			code = ref.Code7
		}

		vintage := "NV"
		if ref.Vintage != nil {
			vintage = fmt.Sprintf("%d", *ref.Vintage)
		}

		region := ref.Region
		if region == "" {
			region = ref.Country
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			code,
			truncate(ref.DisplayName, 48),
			truncate(ref.Producer, 32),
			vintage,
			region,
			ref.Colour,
		)
	}
	_ = w.Flush()
}

// truncate shortens s to at most max runes of visible text.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
