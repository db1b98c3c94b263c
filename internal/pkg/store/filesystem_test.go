package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleHistory() *model.RatesHistoryFile {
	return &model.RatesHistoryFile{
		LenderID: "avant",
		Baseline: model.Baseline{
			Timestamp: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
			RatesHash: "abc123",
			Rates: model.Catalog{{
				ID:         "avant-fixed-3y-60",
				Name:       "3 Year Fixed <60% LTV",
				LenderID:   "avant",
				Type:       model.RateTypeFixed,
				Rate:       3.95,
				MaxLTV:     0.6,
				BuyerTypes: []model.BuyerType{model.BuyerFirstTimeBuyer},
				Perks:      []model.Perk{},
			}},
		},
		Changesets: []model.Changeset{{
			Timestamp: time.Date(2023, 5, 2, 12, 0, 0, 0, time.UTC),
			AfterHash: "def456",
			Operations: []model.Operation{
				{Op: model.OpRemove, ID: "avant-fixed-3y-60"},
			},
		}},
	}
}

func TestFilesystemHistoryRoundTrip(t *testing.T) {
	s := NewFilesystem(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	want := sampleHistory()
	require.NoError(t, s.SaveHistory(ctx, want))

	got, ok, err := s.LoadHistory(ctx, "avant")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFilesystemWritesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	s := NewFilesystem(dir, zap.NewNop())
	require.NoError(t, s.SaveHistory(context.Background(), sampleHistory()))

	raw, err := os.ReadFile(filepath.Join(dir, "history", "avant.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"lenderId\"")
}

func TestFilesystemLoadAbsent(t *testing.T) {
	s := NewFilesystem(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	h, ok, err := s.LoadHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, h)

	c, ok, err := s.LoadCurrent(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, c)
}

func TestFilesystemCurrentRoundTrip(t *testing.T) {
	s := NewFilesystem(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	want := &model.CurrentRates{
		LenderID:      "avant",
		LastScrapedAt: time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC),
		LastUpdatedAt: time.Date(2023, 5, 20, 9, 0, 0, 0, time.UTC),
		RatesHash:     "abc123",
		Rates:         model.Catalog{},
	}
	require.NoError(t, s.SaveCurrent(ctx, want))

	got, ok, err := s.LoadCurrent(ctx, "avant")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFilesystemOverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFilesystem(dir, zap.NewNop())
	ctx := context.Background()

	first := sampleHistory()
	require.NoError(t, s.SaveHistory(ctx, first))

	second := sampleHistory()
	second.Changesets = nil
	require.NoError(t, s.SaveHistory(ctx, second))

	got, ok, err := s.LoadHistory(ctx, "avant")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Changesets)

	entries, err := os.ReadDir(filepath.Join(dir, "history"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "avant.json", entries[0].Name())
}

func TestFilesystemRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s := NewFilesystem(dir, zap.NewNop())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "history"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history", "avant.json"), []byte("{nope"), 0o644))

	_, ok, err := s.LoadHistory(context.Background(), "avant")
	require.Error(t, err)
	assert.False(t, ok)
}
