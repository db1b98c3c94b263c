package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func archSnap(ts, digest string) model.WaybackSnapshot {
	return model.WaybackSnapshot{
		Timestamp:  ts,
		URL:        "https://web.archive.org/web/" + ts + "/page",
		MimeType:   "text/html",
		StatusCode: 200,
		Digest:     digest,
	}
}

func harvestCatalog(rate float64) model.Catalog {
	c := dummyCatalog()
	c[0].Rate = rate
	return c
}

// parseByContent maps canned snapshot bodies to catalogs.
func parseByContent(catalogs map[string]model.Catalog) func([]byte, map[string][]byte) (model.Catalog, error) {
	return func(content []byte, _ map[string][]byte) (model.Catalog, error) {
		c, ok := catalogs[string(content)]
		if !ok {
			return nil, fmt.Errorf("unexpected content %q", content)
		}
		return c, nil
	}
}

func TestRunHarvestsChronologically(t *testing.T) {
	primary := "https://dummy.example.ie/rates"
	legacy := "https://old.dummy.example.ie/rates"

	archive := newFakeArchive()
	// captures arrive out of order and the two indexes share one digest
	archive.indexes[primary] = []model.WaybackSnapshot{
		archSnap("20230103120000", "D3"),
		archSnap("20230101120000", "D1"),
	}
	archive.indexes[legacy] = []model.WaybackSnapshot{
		archSnap("20230102120000", "D2"),
		archSnap("20230101120000", "D1"),
	}
	archive.content["D1"] = []byte("v0")
	archive.content["D2"] = []byte("v1")
	archive.content["D3"] = []byte("v2")

	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary, LegacyURL: legacy}},
		parse: parseByContent(map[string]model.Catalog{
			"v0": harvestCatalog(3.80),
			"v1": harvestCatalog(3.95),
			"v2": harvestCatalog(4.10),
		}),
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.SnapshotsFound)
	assert.Equal(t, 3, report.SnapshotsParsed)
	assert.Equal(t, 0, report.SnapshotsFailed)
	assert.Equal(t, 3, report.UniqueResults)
	assert.False(t, report.StoppedEarly)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, []string{"D1", "D2", "D3"}, archive.fetched)
	require.Len(t, report.Results, 3)
	for i := 1; i < len(report.Results); i++ {
		assert.True(t, report.Results[i-1].Timestamp.Before(report.Results[i].Timestamp))
	}
}

func TestRunStopsOnStructureDrift(t *testing.T) {
	primary := "https://dummy.example.ie/rates"

	archive := newFakeArchive()
	var index []model.WaybackSnapshot
	for i := 1; i <= 5; i++ {
		index = append(index, archSnap(fmt.Sprintf("2023010%d120000", i), fmt.Sprintf("D%d", i)))
	}
	archive.indexes[primary] = index
	archive.content["D1"] = []byte("v0")
	archive.content["D2"] = []byte("v1")
	archive.content["D3"] = []byte("redesigned")
	archive.content["D4"] = []byte("redesigned")
	archive.content["D5"] = []byte("redesigned")

	provider := &fakeValidatingProvider{
		fakeHistoricalProvider: fakeHistoricalProvider{
			fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary}},
			parse: parseByContent(map[string]model.Catalog{
				"v0": harvestCatalog(3.80),
				"v1": harvestCatalog(3.95),
			}),
		},
		validate: func(content []byte, _ map[string][]byte) StructureCheck {
			if string(content) == "redesigned" {
				return StructureCheck{Valid: false, Reason: "rate table not found"}
			}
			return StructureCheck{Valid: true}
		},
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 5, report.SnapshotsFound)
	assert.Equal(t, 2, report.SnapshotsParsed)
	assert.True(t, report.StoppedEarly)
	assert.Equal(t, "rate table not found", report.StopReason)
	// the drifted capture is fetched, nothing after it is
	assert.Equal(t, []string{"D1", "D2", "D3"}, archive.fetched)
	assert.Equal(t, 2, report.UniqueResults)
	assert.Equal(t, 0, report.SnapshotsFailed)
}

func TestRunRecordsSnapshotErrors(t *testing.T) {
	primary := "https://dummy.example.ie/rates"

	archive := newFakeArchive()
	archive.indexes[primary] = []model.WaybackSnapshot{
		archSnap("20230101120000", "D1"),
		archSnap("20230102120000", "D2"),
		archSnap("20230103120000", "D3"),
		archSnap("20230104120000", "D4"),
	}
	archive.content["D1"] = []byte("v0")
	archive.contentErr["D2"] = errors.New("archive returned 500")
	archive.content["D3"] = []byte("empty")
	archive.content["D4"] = []byte("v1")

	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary}},
		parse: parseByContent(map[string]model.Catalog{
			"v0":    harvestCatalog(3.80),
			"empty": {},
			"v1":    harvestCatalog(3.95),
		}),
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.SnapshotsParsed)
	assert.Equal(t, 2, report.SnapshotsFailed)
	assert.Equal(t, 2, report.UniqueResults)
	assert.False(t, report.StoppedEarly)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, "20230102120000", report.Errors[0].Timestamp)
	assert.Contains(t, report.Errors[0].Reason, "archive returned 500")
	assert.Equal(t, "20230103120000", report.Errors[1].Timestamp)
	assert.Contains(t, report.Errors[1].Reason, "parsed zero rates")
}

func TestRunDedupsRepeatedCatalogStates(t *testing.T) {
	primary := "https://dummy.example.ie/rates"

	archive := newFakeArchive()
	archive.indexes[primary] = []model.WaybackSnapshot{
		archSnap("20230101120000", "D1"),
		archSnap("20230102120000", "D2"),
		archSnap("20230103120000", "D3"),
	}
	archive.content["D1"] = []byte("v0")
	archive.content["D2"] = []byte("v1")
	// different capture, same catalog as the first
	archive.content["D3"] = []byte("v0-again")

	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary}},
		parse: parseByContent(map[string]model.Catalog{
			"v0":       harvestCatalog(3.80),
			"v1":       harvestCatalog(3.95),
			"v0-again": harvestCatalog(3.80),
		}),
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.SnapshotsParsed)
	assert.Equal(t, 2, report.UniqueResults)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "20230101120000", report.Results[0].Timestamp.Format("20060102150405"))
	assert.Equal(t, "20230102120000", report.Results[1].Timestamp.Format("20060102150405"))
}

func TestRunPrimaryIndexFailureIsFatal(t *testing.T) {
	primary := "https://dummy.example.ie/rates"

	archive := newFakeArchive()
	archive.indexErrs[primary] = errors.New("cdx timeout")

	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary}},
		parse:        parseByContent(nil),
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	_, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query snapshot index")
	assert.Contains(t, err.Error(), "cdx timeout")
}

func TestRunToleratesSecondaryIndexFailure(t *testing.T) {
	primary := "https://dummy.example.ie/rates"
	legacy := "https://old.dummy.example.ie/rates"

	archive := newFakeArchive()
	archive.indexes[primary] = []model.WaybackSnapshot{archSnap("20230101120000", "D1")}
	archive.indexErrs[legacy] = errors.New("cdx timeout")
	archive.content["D1"] = []byte("v0")

	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary, LegacyURL: legacy}},
		parse:        parseByContent(map[string]model.Catalog{"v0": harvestCatalog(3.80)}),
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.SnapshotsFound)
	assert.Equal(t, 1, report.SnapshotsParsed)
}

func TestRunAlignsAuxiliaryCaptures(t *testing.T) {
	primary := "https://dummy.example.ie/rates"
	aux := "https://dummy.example.ie/fees"

	archive := newFakeArchive()
	archive.indexes[primary] = []model.WaybackSnapshot{archSnap("20230601120000", "D1")}
	archive.indexes[aux] = []model.WaybackSnapshot{archSnap("20230601130000", "A1")}
	archive.content["D1"] = []byte("v0")
	archive.content["A1"] = []byte("fees page")

	var gotAdditional map[string][]byte
	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary, AdditionalURLs: []string{aux}}},
		parse: func(_ []byte, additional map[string][]byte) (model.Catalog, error) {
			gotAdditional = additional
			return harvestCatalog(3.80), nil
		},
	}

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(context.Background(), provider, HarvestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.SnapshotsParsed)
	require.Contains(t, gotAdditional, aux)
	assert.Equal(t, []byte("fees page"), gotAdditional[aux])

	// an hour apart is too far once the alignment window shrinks
	archive.fetched = nil
	gotAdditional = nil
	_, err = o.Run(context.Background(), provider, HarvestOptions{MaxAlignment: time.Minute})
	require.NoError(t, err)
	assert.NotContains(t, gotAdditional, aux)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	primary := "https://dummy.example.ie/rates"

	archive := newFakeArchive()
	archive.indexes[primary] = []model.WaybackSnapshot{archSnap("20230101120000", "D1")}

	provider := &fakeHistoricalProvider{
		fakeProvider: fakeProvider{id: "dummy", sources: Sources{URL: primary}},
		parse:        parseByContent(nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewHistoricalOrchestrator(archive, zap.NewNop())
	report, err := o.Run(ctx, provider, HarvestOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.SnapshotsFound)
	assert.Empty(t, archive.fetched)
}
