// Command indexer builds the per grade and subject textbook collections.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"textbook-rag/internal/app"
	"textbook-rag/internal/config"
	"textbook-rag/internal/ingest"
	"textbook-rag/internal/models"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	grade    string
	subject  string
	language string
	force    bool
	yes      bool
	grades   []string
)

var rootCmd = &cobra.Command{
	Use:           "indexer",
	Short:         "Build textbook vector collections",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest textbook files for one grade and subject",
	Example: `  indexer ingest --grade 3 --subject EVS evs_grade3.pdf
  indexer ingest --grade 2 --subject EVS --language gujarati GUJARATI_evs_grade2.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var discoverCmd = &cobra.Command{
	Use:   "discover [directory]",
	Short: "Find textbook PDFs below a directory and ingest them",
	Long: `Walks the directory for PDF files. The grade is taken from path
elements such as grade3/ and the subject from the file name.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record of one collection",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts per collection",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	for _, cmd := range []*cobra.Command{ingestCmd, clearCmd} {
		cmd.Flags().StringVarP(&grade, "grade", "g", "", "grade, e.g. 3")
		cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject, e.g. EVS or Maths")
		cmd.MarkFlagRequired("grade")
		cmd.MarkFlagRequired("subject")
	}
	for _, cmd := range []*cobra.Command{ingestCmd, discoverCmd, clearCmd} {
		cmd.Flags().StringVarP(&language, "language", "l", "", "english or gujarati (default: detected from the subject)")
	}
	for _, cmd := range []*cobra.Command{ingestCmd, discoverCmd} {
		cmd.Flags().BoolVar(&force, "force", false, "re-ingest files that are already stored")
	}
	discoverCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	statsCmd.Flags().StringSliceVar(&grades, "grades", []string{"1", "2", "3", "4", "5", "6", "7", "8"}, "grades to report")

	rootCmd.AddCommand(ingestCmd, discoverCmd, clearCmd, statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func loadIngester(ctx context.Context) (*ingest.Ingester, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e)
		}
		return nil, nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	in, closeStore, err := app.NewIngester(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if force {
		in.SkipIfExists = false
	}
	return in, closeStore, nil
}

// resolveLanguage honours --language and otherwise detects it from subject.
func resolveLanguage(subject string) (models.Language, error) {
	if language == "" {
		return models.DetectLanguage(subject), nil
	}
	return models.ParseLanguage(language)
}

func runIngest(cmd *cobra.Command, args []string) error {
	lang, err := resolveLanguage(subject)
	if err != nil {
		return err
	}

	in, closeStore, err := loadIngester(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	books := make([]ingest.Textbook, len(args))
	for i, path := range args {
		books[i] = ingest.Textbook{Path: path, Subject: subject, Grade: grade, Language: lang}
	}

	return ingestBooks(cmd.Context(), in, books)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	lang := models.English
	if language != "" {
		var err error
		if lang, err = models.ParseLanguage(language); err != nil {
			return err
		}
	}

	books, err := ingest.Discover(args[0], lang)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		color.Yellow("No PDF files found in %s", args[0])
		return nil
	}

	in, closeStore, err := loadIngester(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	color.Cyan("Found %d textbooks:", len(books))
	for _, tb := range books {
		fmt.Printf("  %s  grade %s, %s -> %s\n", tb.Path, tb.Grade, tb.Subject, in.Locate(tb).Name())
	}

	if !yes && !confirm(fmt.Sprintf("Ingest %d %s textbooks?", len(books), lang)) {
		color.Yellow("Cancelled")
		return nil
	}

	return ingestBooks(cmd.Context(), in, books)
}

func ingestBooks(ctx context.Context, in *ingest.Ingester, books []ingest.Textbook) error {
	bar := getProgressBar(0, "Embedding chunks")
	in.Embedding.Progress = func(processed, total int) {
		bar.ChangeMax(total)
		bar.Set(processed)
	}

	start := time.Now()
	summary := in.IngestAll(ctx, books)
	bar.Finish()
	fmt.Println()

	color.Green("✓ Processed %d textbooks (%d chunks) in %v", summary.Processed, summary.Chunks, time.Since(start).Round(time.Second))
	if summary.Skipped > 0 {
		color.Yellow("  Skipped %d textbooks already in the database (use --force to re-ingest)", summary.Skipped)
	}
	for _, r := range summary.Results {
		if r.Err != nil {
			color.Red("  ✗ %s: %v", r.Textbook.Path, r.Err)
		}
	}
	if len(summary.Databases) > 0 {
		color.Cyan("Databases: %s", strings.Join(summary.Databases, ", "))
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d textbooks failed", summary.Failed, len(books))
	}
	return ctx.Err()
}

func runClear(cmd *cobra.Command, _ []string) error {
	lang, err := resolveLanguage(subject)
	if err != nil {
		return err
	}

	in, closeStore, err := loadIngester(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	name := in.Locate(ingest.Textbook{Grade: grade, Subject: subject, Language: lang}).Name()
	if !yes && !confirm(fmt.Sprintf("Delete every record in %s?", name)) {
		color.Yellow("Cancelled")
		return nil
	}

	if _, err := in.Clear(cmd.Context(), grade, subject, lang); err != nil {
		return err
	}
	color.Green("✓ Cleared %s", name)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	in, closeStore, err := loadIngester(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	found := 0
	for _, g := range grades {
		for _, lang := range []models.Language{models.English, models.Gujarati} {
			for _, subj := range []string{"EVS", "Maths", "Other"} {
				loc, n, err := in.Count(cmd.Context(), g, subj, lang)
				if err != nil {
					color.Red("  %s: %v", loc.Name(), err)
					continue
				}
				if n == 0 {
					continue
				}
				found++
				fmt.Printf("  %-32s %8d records\n", loc.Name(), n)
			}
		}
	}

	if found == 0 {
		color.Yellow("No collections found")
	}
	return nil
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
