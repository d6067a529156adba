package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"booking-validation-service/internal/fixtures"
	"booking-validation-service/internal/parsers"
	"booking-validation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	generateCount          int
	generateSeed           uint64
	generateFormat         string
	generateOutputDir      string
	generateReferenceRatio float64
	generateUnmatchedRatio float64
)

// generateCmd writes a sample bookings file and a manifest that reconciles
// against it
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate sample bookings and a manifest",
	Long: `Generate writes bookings.json and a manifest (manifest.csv or
manifest.xlsx) into the output directory. Rows carry a booking reference,
a misspelt passenger name on a known flight, or an unknown flight, so a
validate run shows every kind of outcome.

Examples:
  validator generate --count 100 --output-dir ./sample
  validator validate --file ./sample/manifest.csv --bookings ./sample/bookings.json --user demo`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	flags := generateCmd.Flags()
	flags.IntVarP(&generateCount, "count", "n", 100, fmt.Sprintf("manifest rows, at most %d", fixtures.MaxCount()))
	flags.Uint64Var(&generateSeed, "seed", 1, "random seed; the same seed writes the same files")
	flags.StringVar(&generateFormat, "format", "csv", "manifest format: csv, excel")
	flags.StringVarP(&generateOutputDir, "output-dir", "o", ".", "directory the files are written to")
	flags.Float64Var(&generateReferenceRatio, "reference-ratio", 0.6, "share of rows carrying a booking reference")
	flags.Float64Var(&generateUnmatchedRatio, "unmatched-ratio", 0.2, "share of rows on unknown flights")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	kind, err := parsers.ParseFileType(generateFormat)
	if err != nil {
		return err
	}

	generator := fixtures.NewGenerator(generateCount, generateSeed)
	generator.ReferenceRatio = generateReferenceRatio
	generator.UnmatchedRatio = generateUnmatchedRatio

	dataset, err := generator.Generate()
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "generate", generateCount, err)
	}

	if err := os.MkdirAll(generateOutputDir, 0o755); err != nil {
		return errors.FileError(errors.CodeFilePermission, generateOutputDir, err)
	}

	bookingsPath := filepath.Join(generateOutputDir, "bookings.json")
	if err := writeOutput(bookingsPath, dataset.WriteBookingsJSON); err != nil {
		return err
	}

	manifestPath := filepath.Join(generateOutputDir, "manifest.csv")
	write := dataset.WriteManifestCSV
	if kind == parsers.FileTypeExcel {
		manifestPath = filepath.Join(generateOutputDir, "manifest.xlsx")
		write = dataset.WriteManifestXLSX
	}
	if err := writeOutput(manifestPath, write); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %d bookings to %s\n", len(dataset.Bookings), bookingsPath)
	fmt.Fprintf(out, "Wrote %d manifest rows to %s\n", len(dataset.Rows), manifestPath)
	fmt.Fprintf(out, "  with reference: %d\n", dataset.Count(fixtures.OutcomeReference))
	fmt.Fprintf(out, "  misspelt name:  %d\n", dataset.Count(fixtures.OutcomeFuzzy))
	fmt.Fprintf(out, "  unknown flight: %d\n", dataset.Count(fixtures.OutcomeUnmatched))
	return nil
}

func writeOutput(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if err := f.Close(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}
