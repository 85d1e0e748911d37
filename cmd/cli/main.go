package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/backend"
	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/infra/gcs"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		runExtract(log)
	case "save":
		runSave(log)
	case "scan":
		runScan(log)
	case "get":
		runGet(log)
	case "delete":
		runDelete(log)
	case "expense":
		runExpense(log)
	case "aggregate":
		runAggregate(log)
	case "summarize":
		runSummarize(log)
	case "export":
		runExport(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract    Extract and categorize a receipt from a text file (nothing is saved)")
	fmt.Println("  save       Save an enriched receipt JSON file")
	fmt.Println("  scan       Read, categorize and save a receipt image (local path or gs:// URI)")
	fmt.Println("  get        Show a receipt and its expenses")
	fmt.Println("  delete     Delete a receipt and its expenses")
	fmt.Println("  expense    Add a manual expense")
	fmt.Println("  aggregate  Show category totals, top merchants and month comparison")
	fmt.Println("  summarize  Ask the model for a summary of this month's spending")
	fmt.Println("  export     Export all expenses to CSV or XLSX")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nEvery command accepts -config PATH; commands touching stored data need -user ID.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// session is the state shared by every sub-command after flag parsing.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	be     *backend.Result
	log    zerolog.Logger
}

func (s *session) Close() {
	s.be.Cleanup()
	s.cancel()
}

// newFlagSet registers the flags every sub-command shares.
func newFlagSet(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("RECEIPTS_CONFIG"), "Path to YAML config file (optional)")
	userID := fs.String("user", "", "User ID owning the data")
	return fs, configPath, userID
}

func open(log zerolog.Logger, configPath string, timeout time.Duration) *session {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewFromConfig(cfg.Logger.Level, cfg.Logger.Format)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	be, err := backend.Build(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize backend")
	}
	return &session{ctx: ctx, cancel: cancel, cfg: cfg, be: be, log: log}
}

func requireUser(log zerolog.Logger, userID string) {
	if strings.TrimSpace(userID) == "" {
		log.Fatal().Msg("Error: -user is required")
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}

func runExtract(log zerolog.Logger) {
	fs, configPath, _ := newFlagSet("extract")
	filePath := fs.String("file", "", "Path to a text file with recognized receipt text")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli extract -file PATH")
	}
	text, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	s := open(log, *configPath, 2*time.Minute)
	defer s.Close()

	receipt, err := s.be.Service.ExtractAndEnrich(s.ctx, string(text))
	if err != nil {
		s.log.Fatal().Err(err).Msg("Extraction failed")
	}
	printJSON(receipt)
}

func runSave(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("save")
	filePath := fs.String("file", "", "Path to an enriched receipt JSON file")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)
	if *filePath == "" {
		log.Fatal().Msg("Usage: cli save -user ID -file PATH")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}
	var receipt domain.EnrichedReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		log.Fatal().Err(err).Msg("Failed to decode receipt JSON")
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	receiptID, err := s.be.Service.SaveEnrichedReceipt(s.ctx, *userID, &receipt)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Save failed")
	}
	fmt.Printf("Saved receipt %s with %d items.\n", receiptID, len(receipt.Items))
}

func runScan(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("scan")
	source := fs.String("file", "", "Local image path or gs://bucket/object URI")
	mimeType := fs.String("mime", "", "Image MIME type (detected when empty)")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)
	if *source == "" {
		log.Fatal().Msg("Usage: cli scan -user ID -file PATH|gs://URI")
	}

	s := open(log, *configPath, 5*time.Minute)
	defer s.Close()

	image, name, err := loadImage(s, *source)
	if err != nil {
		s.log.Fatal().Err(err).Str("source", *source).Msg("Failed to load image")
	}
	if *mimeType == "" {
		*mimeType = mime.TypeByExtension(filepath.Ext(name))
		if *mimeType == "" {
			*mimeType = http.DetectContentType(image)
		}
	}

	s.log.Info().Str("file", name).Str("mime_type", *mimeType).Int("bytes", len(image)).Msg("Scanning receipt")

	result, err := s.be.Service.IngestImage(s.ctx, *userID, image, *mimeType)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Scan failed")
	}
	fmt.Printf("Saved receipt %s.\n", result.ReceiptID)
	printJSON(result.Receipt)
}

func loadImage(s *session, source string) ([]byte, string, error) {
	if !strings.HasPrefix(source, "gs://") {
		data, err := os.ReadFile(source)
		return data, filepath.Base(source), err
	}

	bucket, _, err := gcs.ParseURI(source)
	if err != nil {
		return nil, "", err
	}
	client := s.be.GCS
	if client == nil {
		client, err = gcs.NewStore(s.ctx, bucket, "", backend.ClientOptions(s.cfg)...)
		if err != nil {
			return nil, "", err
		}
		defer client.Close()
	}
	data, err := client.FetchURI(s.ctx, source)
	return data, gcs.FilenameFromURI(source), err
}

func runGet(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("get")
	receiptID := fs.String("receipt-id", "", "Receipt ID")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)
	if *receiptID == "" {
		log.Fatal().Msg("Error: -receipt-id is required")
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	detail, err := s.be.Service.GetReceipt(s.ctx, *userID, *receiptID)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Lookup failed")
	}

	fmt.Println("\n=== Receipt ===")
	fmt.Printf("ID:        %s\n", detail.Summary.ReceiptID)
	fmt.Printf("Merchant:  %s\n", detail.Summary.Merchant)
	fmt.Printf("Date:      %s\n", detail.Summary.Date)
	fmt.Printf("Total:     %.2f\n", detail.Summary.Total)
	fmt.Printf("Parsed by: %s\n", detail.Summary.ParsedBy)

	fmt.Printf("\n=== Expenses (%d) ===\n", len(detail.Expenses))
	for i, e := range detail.Expenses {
		qty := 1
		if e.Quantity != nil {
			qty = *e.Quantity
		}
		fmt.Printf("%d. %-30s %3d x %8.2f  %s\n", i+1, e.ItemName, qty, e.Amount, e.Category)
	}
	fmt.Println()
}

func runDelete(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("delete")
	receiptID := fs.String("receipt-id", "", "Receipt ID to delete")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)
	if *receiptID == "" {
		log.Fatal().Msg("Error: -receipt-id is required")
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	n, err := s.be.Service.DeleteReceipt(s.ctx, *userID, *receiptID)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Delete failed")
	}
	fmt.Printf("Deleted receipt %s and %d expenses.\n", *receiptID, n)
}

func runExpense(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("expense")
	name := fs.String("item", "", "Item name")
	amount := fs.Float64("amount", 0, "Amount")
	quantity := fs.Int("quantity", 0, "Quantity (optional)")
	category := fs.String("category", "", "Category from the fixed taxonomy")
	merchant := fs.String("merchant", "", "Merchant")
	date := fs.String("date", "", "Date as MM/DD/YYYY (defaults to today)")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)

	in := domain.ManualExpense{
		ItemName: *name,
		Amount:   *amount,
		Category: *category,
		Merchant: *merchant,
		Date:     *date,
	}
	if *quantity > 0 {
		in.Quantity = quantity
	}

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	record, err := s.be.Service.AddManualExpense(s.ctx, *userID, in)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Failed to add expense")
	}
	printJSON(record)
}

func runAggregate(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("aggregate")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)

	s := open(log, *configPath, time.Minute)
	defer s.Close()

	result, err := s.be.Service.Aggregate(s.ctx, *userID)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Aggregation failed")
	}
	printJSON(result)
}

func runSummarize(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("summarize")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)

	s := open(log, *configPath, 2*time.Minute)
	defer s.Close()

	text, err := s.be.Service.Summarize(s.ctx, *userID)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Summary failed")
	}
	fmt.Println(text)
}

func runExport(log zerolog.Logger) {
	fs, configPath, userID := newFlagSet("export")
	out := fs.String("out", "", "Also write the exported file to this local path")
	fs.Parse(os.Args[2:])

	requireUser(log, *userID)

	s := open(log, *configPath, 2*time.Minute)
	defer s.Close()

	result, err := s.be.Service.ExportAll(s.ctx, *userID)
	if err != nil {
		s.log.Fatal().Err(err).Msg("Export failed")
	}

	if *out != "" {
		data, err := s.be.Blobs.Download(s.ctx, result.Path)
		if err != nil {
			s.log.Fatal().Err(err).Msg("Failed to download export")
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			s.log.Fatal().Err(err).Msg("Failed to write export")
		}
		fmt.Printf("Wrote %d rows to %s\n", result.RowCount, *out)
	}

	fmt.Printf("Exported %d rows.\nURL (valid until %s):\n%s\n",
		result.RowCount, result.ExpiresAt.Format(time.RFC3339), result.URL)
}
