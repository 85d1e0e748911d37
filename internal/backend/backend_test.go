package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/infra/sqlite"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/store/inmemory"
)

func openAIConfig() *config.Config {
	return &config.Config{
		Store:     config.StoreConfig{Backend: "memory"},
		Oracle:    config.OracleConfig{Provider: "openai", OpenAIAPIKey: "sk-test", MaxTokens: 100, Timeout: time.Second},
		Export:    config.ExportConfig{Backend: "memory", Format: "csv", URLTTL: time.Minute},
		Analytics: config.AnalyticsConfig{Timezone: "UTC"},
	}
}

func TestBuild_MemoryWithOpenAI(t *testing.T) {
	res, err := Build(context.Background(), openAIConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer res.Cleanup()

	assert.IsType(t, &inmemory.Store{}, res.Store)
	assert.Nil(t, res.GCS)

	_, err = res.Service.IngestImage(context.Background(), "u1", []byte{1}, "image/png")
	assert.ErrorIs(t, err, pipeline.ErrRecognizerUnavailable, "openai alone cannot read images")
}

func TestBuild_SQLiteStore(t *testing.T) {
	cfg := openAIConfig()
	cfg.Store = config.StoreConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "r.db")}
	cfg.Export.Format = "xlsx"

	res, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer res.Cleanup()

	assert.IsType(t, &sqlite.Store{}, res.Store)

	rec, err := res.Service.AddManualExpense(context.Background(), "u1", domain.ManualExpense{ItemName: "Bus", Amount: 2})
	require.NoError(t, err)
	got, err := res.Store.ListExpensesByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "Bus", got[0].ItemName)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"store", func(c *config.Config) { c.Store.Backend = "postgres" }, "unsupported store backend"},
		{"export", func(c *config.Config) { c.Export.Backend = "s3" }, "unsupported export backend"},
		{"oracle", func(c *config.Config) { c.Oracle.Provider = "llama" }, "unsupported oracle provider"},
		{"format", func(c *config.Config) { c.Export.Format = "pdf" }, "pdf"},
		{"openai key", func(c *config.Config) { c.Oracle.OpenAIAPIKey = "" }, "API key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := openAIConfig()
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg, zerolog.Nop())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
