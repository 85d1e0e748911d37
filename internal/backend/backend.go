// Package backend builds the receipt service from configuration, choosing
// the document store, blob store and oracle implementations.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/receipt-ledger/internal/analytics"
	"github.com/dvloznov/receipt-ledger/internal/blob"
	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/enrich"
	"github.com/dvloznov/receipt-ledger/internal/export"
	"github.com/dvloznov/receipt-ledger/internal/infra/bigquery"
	"github.com/dvloznov/receipt-ledger/internal/infra/gcs"
	"github.com/dvloznov/receipt-ledger/internal/infra/genai"
	"github.com/dvloznov/receipt-ledger/internal/infra/openai"
	"github.com/dvloznov/receipt-ledger/internal/infra/sqlite"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/store"
	"github.com/dvloznov/receipt-ledger/internal/store/inmemory"
)

// Result holds the assembled service and the collaborators commands may
// need directly. GCS is nil unless the gcs export backend is selected.
type Result struct {
	Service *pipeline.Service
	Store   store.Store
	Blobs   blob.Store
	GCS     *gcs.Store
	Cleanup func()
}

// oracles groups the model-backed collaborators. Recognizer may be nil.
type oracles struct {
	classifier enrich.Classifier
	recognizer enrich.TextRecognizer
	summarizer enrich.Summarizer
}

// Build wires every component named by cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Result, error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("Cleanup failed")
			}
		}
	}

	st, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	blobs, gcsStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}
	if gcsStore != nil {
		closers = append(closers, gcsStore.Close)
	}

	o, err := newOracles(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	encoder, err := export.NewEncoder(cfg.Export.Format)
	if err != nil {
		cleanup()
		return nil, err
	}

	enricher := enrich.NewEnricher(o.classifier, log)
	svc := pipeline.NewService(pipeline.Deps{
		Enricher:   enricher,
		Recognizer: o.recognizer,
		Ledger:     ledger.NewCoordinator(st, enricher.Model(), log),
		Analytics:  analytics.NewEngine(st, o.summarizer, cfg.Analytics.Location(), log),
		Exporter:   export.NewExporter(st, blobs, encoder, cfg.Export.URLTTL, log),
		Log:        log,
	})

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("export", cfg.Export.Backend).
		Str("oracle", cfg.Oracle.Provider).
		Str("model", enricher.Model()).
		Bool("recognizer", o.recognizer != nil).
		Msg("Backend initialized")

	return &Result{Service: svc, Store: st, Blobs: blobs, GCS: gcsStore, Cleanup: cleanup}, nil
}

// ClientOptions returns the Google Cloud client options implied by cfg.
func ClientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.GCP.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCP.CredentialsFile)}
}

func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, func() error, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := sqlite.Open(cfg.Store.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return s, s.Close, nil
	case "bigquery":
		s, err := bigquery.NewStore(ctx, cfg.GCP.ProjectID, cfg.Store.Dataset, log, ClientOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize BigQuery store: %w", err)
		}
		return s, s.Close, nil
	case "memory", "":
		return inmemory.NewStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, *gcs.Store, error) {
	switch cfg.Export.Backend {
	case "gcs":
		s, err := gcs.NewStore(ctx, cfg.Export.Bucket, cfg.Export.Prefix, ClientOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize GCS store: %w", err)
		}
		return s, s, nil
	case "memory", "":
		return blob.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported export backend: %s", cfg.Export.Backend)
	}
}

// newOracles builds the classifier and summarizer for the selected
// provider. Text recognition always uses Gemini; with the openai provider
// it is only available when a Gemini key is configured as well.
func newOracles(ctx context.Context, cfg *config.Config) (oracles, error) {
	oc := cfg.Oracle

	switch oc.Provider {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			APIKey:      oc.OpenAIAPIKey,
			Model:       oc.Model,
			Temperature: oc.Temperature,
			MaxTokens:   oc.MaxTokens,
			Timeout:     oc.Timeout,
		})
		if err != nil {
			return oracles{}, err
		}
		o := oracles{classifier: client, summarizer: client}
		if oc.GeminiAPIKey != "" {
			vision, err := genai.NewClient(ctx, genai.Config{
				APIKey:      oc.GeminiAPIKey,
				Temperature: oc.Temperature,
				MaxTokens:   int32(oc.MaxTokens),
				Timeout:     oc.Timeout,
			})
			if err != nil {
				return oracles{}, err
			}
			o.recognizer = vision
		}
		return o, nil
	case "gemini", "":
		client, err := genai.NewClient(ctx, genai.Config{
			APIKey:      oc.GeminiAPIKey,
			Model:       oc.Model,
			Temperature: oc.Temperature,
			MaxTokens:   int32(oc.MaxTokens),
			Timeout:     oc.Timeout,
		})
		if err != nil {
			return oracles{}, err
		}
		return oracles{classifier: client, recognizer: client, summarizer: client}, nil
	default:
		return oracles{}, fmt.Errorf("unsupported oracle provider: %s", oc.Provider)
	}
}
