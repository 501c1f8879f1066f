package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"market-analytics/src/config"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{MConfig: &models.MConfig{
		Storage:  models.MStorageConfig{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "seed.db")},
		Datasets: []models.MDatasetConfig{{Key: "sp500", Table: "sp500_stocks"}},
	}}
}

func TestRunLoadsCSVInBatches(t *testing.T) {
	conf := seedConfig(t)
	file := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(file, []byte(
		"symbol,name,trade_date,close_price,volume\n"+
			"AAA,Alpha,2024-01-02,10,100\n"+
			"AAA,Alpha,2024-01-03,11,100\n"+
			"BBB,Beta,2024-01-03,20,50\n"), 0o644))

	err := run(context.Background(), conf, options{dataset: "sp500", file: file, batch: 2}, logger.NewSilentLogger())
	require.NoError(t, err)

	store, err := storage.NewDurableStore(conf.MConfig, logger.NewSilentLogger())
	require.NoError(t, err)
	require.NoError(t, store.Initialize(conf.Datasets))
	defer store.Close()

	rows, err := store.ReadHistory(context.Background(), "sp500")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRunReturnsErrorsInsteadOfExiting(t *testing.T) {
	conf := seedConfig(t)
	log := logger.NewSilentLogger()

	err := run(context.Background(), conf, options{dataset: "nikkei", file: "x.csv"}, log)
	assert.ErrorContains(t, err, "unknown dataset")

	err = run(context.Background(), conf, options{dataset: "sp500"}, log)
	assert.ErrorContains(t, err, "-file is required")

	err = run(context.Background(), conf, options{dataset: "sp500", file: filepath.Join(t.TempDir(), "missing.csv")}, log)
	assert.ErrorContains(t, err, "open")
}
