package history

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/repository"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeArchive struct {
	mu      sync.Mutex
	records []*models.HistoryEntry
	err     error
}

func (f *fakeArchive) Record(_ context.Context, e *models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, e.Clone())
	return nil
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(opts ...Option) (*Service, *repository.MemoryHistoryRepository, *clock) {
	c := &clock{now: t0}
	repo := repository.NewMemoryHistoryRepository(0)
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewService(repo, repository.NewKeyedMutex(), opts...), repo, c
}

func newSignal(id, asset string, typ models.SignalType, strength int, confidence float64, ts time.Time) *models.Signal {
	return &models.Signal{
		SignalID:   id,
		Asset:      asset,
		Type:       typ,
		Strength:   strength,
		Confidence: confidence,
		Timestamp:  ts,
		ExpiryTime: ts.Add(24 * time.Hour),
		Status:     models.StatusActive,
		Level:      models.DeriveLevel(strength, confidence),
	}
}

func outcome(dir string) models.Outcome { return models.Outcome{ActualOutcome: dir} }

func TestAddSignalToHistory(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	e, err := svc.AddSignalToHistory(ctx, newSignal("signal_a", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)
	assert.Equal(t, "hist_0_signal_a", e.HistoryID)
	assert.Equal(t, models.StatusActive, e.Status)
	assert.Nil(t, e.Outcome)
	assert.Nil(t, e.Accuracy)
	assert.Equal(t, t0, e.AddedToHistoryAt)

	e, err = svc.AddSignalToHistory(ctx, newSignal("signal_b", "ETH", models.SignalSell, 5, 0.6, t0))
	require.NoError(t, err)
	assert.Equal(t, "hist_1_signal_b", e.HistoryID)

	stored, err := svc.GetSignal(ctx, "signal_b")
	require.NoError(t, err)
	assert.Equal(t, "hist_1_signal_b", stored.HistoryID)

	_, err = svc.AddSignalToHistory(ctx, newSignal("signal_a", "BTC", models.SignalBuy, 8, 0.85, t0))
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.AddSignalToHistory(ctx, newSignal("signal_c", "BTC", models.SignalBuy, 11, 0.85, t0))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAddSignalToHistory_RederivesLevel(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	sig := newSignal("signal_weak", "BTC", models.SignalBuy, 1, 0.0, t0)
	sig.Level = models.LevelExtreme
	sig.Description = "Strong extreme buy signal"

	e, err := svc.AddSignalToHistory(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, models.DeriveLevel(1, 0.0), e.Level)
	assert.NotEqual(t, models.LevelExtreme, e.Level)
	assert.Equal(t, models.DeriveDescription(&e.Signal), e.Description)
	assert.Equal(t, models.LevelExtreme, sig.Level)

	stats, err := svc.GetSignalStatistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.LevelDistribution[models.LevelExtreme])
	assert.Equal(t, 1, stats.LevelDistribution[e.Level])
}

func TestUpdateSignalOutcome_TrinaryAccuracy(t *testing.T) {
	// Partial credit is deliberately flat: every case that is neither a match
	// nor the opposite move scores exactly 0.5, whatever its magnitude.
	cases := []struct {
		typ    models.SignalType
		actual string
		want   float64
	}{
		{models.SignalBuy, models.TrendUp, 1.0},
		{models.SignalBuy, models.TrendDown, 0.0},
		{models.SignalBuy, models.TrendNeutral, 0.5},
		{models.SignalSell, models.TrendDown, 1.0},
		{models.SignalSell, models.TrendUp, 0.0},
		{models.SignalHold, models.TrendNeutral, 1.0},
		{models.SignalHold, models.TrendUp, 0.5},
		{models.SignalAlert, models.TrendNeutral, 0.5},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("%s_%s", c.typ, c.actual), func(t *testing.T) {
			svc, _, _ := newService()
			id := fmt.Sprintf("signal_%d", i)
			_, err := svc.AddSignalToHistory(context.Background(), newSignal(id, "BTC", c.typ, 6, 0.6, t0))
			require.NoError(t, err)

			e, err := svc.UpdateSignalOutcome(context.Background(), id, outcome(c.actual))
			require.NoError(t, err)
			require.NotNil(t, e.Accuracy)
			assert.Equal(t, c.want, *e.Accuracy)
			assert.Equal(t, models.StatusCompleted, e.Status)
		})
	}
}

func TestUpdateSignalOutcome_Errors(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	_, err := svc.UpdateSignalOutcome(ctx, "missing", outcome(models.TrendUp))
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.AddSignalToHistory(ctx, newSignal("signal_a", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)
	_, err = svc.UpdateSignalOutcome(ctx, "signal_a", outcome("sideways"))
	assert.ErrorIs(t, err, models.ErrValidation)

	first, err := svc.UpdateSignalOutcome(ctx, "signal_a", models.Outcome{})
	require.NoError(t, err)
	assert.Equal(t, models.TrendNeutral, first.Outcome.ActualOutcome)

	_, err = svc.UpdateSignalOutcome(ctx, "signal_a", outcome(models.TrendUp))
	assert.ErrorIs(t, err, models.ErrConflict)

	e, err := svc.GetSignal(ctx, "signal_a")
	require.NoError(t, err)
	assert.Equal(t, 0.5, *e.Accuracy)
	assert.Equal(t, models.TrendNeutral, e.Outcome.ActualOutcome)
}

func TestUpdateSignalOutcome_ConcurrentSameSignal(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	_, err := svc.AddSignalToHistory(ctx, newSignal("signal_a", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicts := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateSignalOutcome(ctx, "signal_a", outcome(models.TrendUp))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 15, conflicts)

	tracking, err := repo.Tracking(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tracking["signal_a"].TotalPredictions)
	assert.Len(t, tracking["signal_a"].Predictions, 1)
}

func TestAddSignalToHistory_ConcurrentDistinctSignals(t *testing.T) {
	const n = 64
	svc, repo, _ := newService()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddSignalToHistory(ctx, newSignal(fmt.Sprintf("signal_%d", i), "BTC", models.SignalBuy, 6, 0.7, t0))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "signal_%d", i)
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, n)

	seqs := make(map[int]bool, n)
	signals := make(map[string]bool, n)
	for _, e := range list {
		require.True(t, strings.HasSuffix(e.HistoryID, "_"+e.SignalID), e.HistoryID)
		var seq int
		_, err := fmt.Sscanf(strings.TrimSuffix(e.HistoryID, "_"+e.SignalID), "hist_%d", &seq)
		require.NoError(t, err, e.HistoryID)
		assert.False(t, seqs[seq], "sequence %d issued twice", seq)
		seqs[seq] = true
		signals[e.SignalID] = true
	}
	assert.Len(t, signals, n)
	for i := 0; i < n; i++ {
		assert.True(t, seqs[i], "sequence %d missing", i)
	}
}

func TestExpiry_LazyAndSweep(t *testing.T) {
	svc, repo, clk := newService()
	ctx := context.Background()
	for _, id := range []string{"signal_a", "signal_b", "signal_c"} {
		_, err := svc.AddSignalToHistory(ctx, newSignal(id, "BTC", models.SignalBuy, 6, 0.6, t0))
		require.NoError(t, err)
	}
	clk.Advance(25 * time.Hour)

	// Reads report expiry before the sweep persists it.
	e, err := svc.GetSignal(ctx, "signal_a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, e.Status)
	raw, err := repo.Get(ctx, "signal_a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, raw.Status)

	// Late outcomes still complete an unswept signal.
	late, err := svc.UpdateSignalOutcome(ctx, "signal_b", outcome(models.TrendUp))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, late.Status)

	_, err = svc.CancelSignal(ctx, "signal_c")
	assert.ErrorIs(t, err, models.ErrConflict)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.UpdateSignalOutcome(ctx, "signal_a", outcome(models.TrendUp))
	assert.ErrorIs(t, err, models.ErrConflict)

	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancelSignal(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	_, err := svc.AddSignalToHistory(ctx, newSignal("signal_a", "BTC", models.SignalBuy, 6, 0.6, t0))
	require.NoError(t, err)

	e, err := svc.CancelSignal(ctx, "signal_a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, e.Status)

	_, err = svc.CancelSignal(ctx, "signal_a")
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = svc.UpdateSignalOutcome(ctx, "signal_a", outcome(models.TrendUp))
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = svc.CancelSignal(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetSignalHistory_FilterOrderLimit(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		asset := "BTC"
		if i%2 == 1 {
			asset = "ETH"
		}
		_, err := svc.AddSignalToHistory(ctx, newSignal(fmt.Sprintf("signal_%d", i), asset, models.SignalBuy, 6, 0.6, t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	all, err := svc.GetSignalHistory(ctx, models.HistoryFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "signal_4", all[0].SignalID)
	assert.Equal(t, "signal_0", all[4].SignalID)

	btc, err := svc.GetSignalHistory(ctx, models.HistoryFilter{Asset: "BTC"}, 2)
	require.NoError(t, err)
	require.Len(t, btc, 2)
	assert.Equal(t, "signal_4", btc[0].SignalID)
	assert.Equal(t, "signal_2", btc[1].SignalID)

	from, to := t0.Add(time.Minute), t0.Add(3*time.Minute)
	ranged, err := svc.GetSignalHistory(ctx, models.HistoryFilter{From: &from, To: &to}, 10)
	require.NoError(t, err)
	assert.Len(t, ranged, 3)
}

func TestGetSignalStatistics(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	add := func(id, asset string, typ models.SignalType) {
		_, err := svc.AddSignalToHistory(ctx, newSignal(id, asset, typ, 8, 0.85, t0))
		require.NoError(t, err)
	}
	add("a", "BTC", models.SignalBuy)
	add("b", "BTC", models.SignalBuy)
	add("c", "ETH", models.SignalSell)
	add("d", "ETH", models.SignalHold)

	_, err := svc.UpdateSignalOutcome(ctx, "a", outcome(models.TrendUp))
	require.NoError(t, err)
	_, err = svc.UpdateSignalOutcome(ctx, "b", outcome(models.TrendDown))
	require.NoError(t, err)
	_, err = svc.UpdateSignalOutcome(ctx, "c", outcome(models.TrendNeutral))
	require.NoError(t, err)
	_, err = svc.CancelSignal(ctx, "d")
	require.NoError(t, err)

	stats, err := svc.GetSignalStatistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalSignals)
	assert.Equal(t, 3, stats.CompletedSignals)
	assert.Equal(t, 1, stats.CanceledSignals)
	assert.Equal(t, 2, stats.AssetDistribution["BTC"])
	assert.Equal(t, 2, stats.TypeDistribution[models.SignalBuy])

	acc := stats.Accuracy
	assert.InDelta(t, 0.5, acc.AverageAccuracy, 1e-9)
	assert.Equal(t, 3, acc.TotalPredictions)
	assert.Equal(t, 2, acc.CorrectPredictions)
	assert.InDelta(t, 2.0/3.0, acc.OverallAccuracy, 1e-9)
	assert.InDelta(t, 0.5, acc.ByType["buy"], 1e-9)
	assert.InDelta(t, 0.5, acc.ByAsset["ETH"], 1e-9)

	later := t0.Add(time.Hour)
	empty, err := svc.GetSignalStatistics(ctx, &later, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSignals)
	assert.Zero(t, empty.Accuracy.OverallAccuracy)
}

func TestGetAccuracyTracking_SumOverSumNotMean(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	_, err := svc.AddSignalToHistory(ctx, newSignal("a", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)
	_, err = svc.AddSignalToHistory(ctx, newSignal("b", "BTC", models.SignalSell, 8, 0.85, t0))
	require.NoError(t, err)
	_, err = svc.AddSignalToHistory(ctx, newSignal("c", "ETH", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)

	// a: 1 of 1 correct. b: 1 of 3 correct. Mean of ratios would be 2/3.
	_, err = repo.Update(ctx, "a", func(_ *models.HistoryEntry, tr *models.AccuracyTracking) error {
		tr.Record(models.TrendUp, 1, t0)
		return nil
	})
	require.NoError(t, err)
	_, err = repo.Update(ctx, "b", func(_ *models.HistoryEntry, tr *models.AccuracyTracking) error {
		tr.Record(models.TrendDown, 1, t0)
		tr.Record(models.TrendUp, 0, t0)
		tr.Record(models.TrendUp, 0, t0)
		return nil
	})
	require.NoError(t, err)

	report, err := svc.GetAccuracyTracking(ctx, "BTC", "")
	require.NoError(t, err)
	assert.Len(t, report.Signals, 2)
	assert.Equal(t, 4, report.TotalPredictions)
	assert.Equal(t, 2, report.CorrectPredictions)
	assert.InDelta(t, 0.5, report.OverallAccuracy, 1e-9)

	sells, err := svc.GetAccuracyTracking(ctx, "", models.SignalSell)
	require.NoError(t, err)
	assert.Len(t, sells.Signals, 1)
	assert.Contains(t, sells.Signals, "b")
	assert.NotContains(t, sells.Signals, "a")
}

func TestEndToEnd_BuyBTCResolvedUp(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	_, err := svc.AddSignalToHistory(ctx, newSignal("signal_btc", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)

	e, err := svc.UpdateSignalOutcome(ctx, "signal_btc", outcome(models.TrendUp))
	require.NoError(t, err)
	assert.Equal(t, 1.0, *e.Accuracy)

	report, err := svc.GetAccuracyTracking(ctx, "BTC", "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalPredictions)
	assert.Equal(t, 1, report.CorrectPredictions)
	assert.Equal(t, 1.0, report.OverallAccuracy)
}

func TestArchiveMirrorFailureDoesNotFail(t *testing.T) {
	archive := &fakeArchive{}
	svc, _, _ := newService(WithArchive(archive))
	ctx := context.Background()

	_, err := svc.AddSignalToHistory(ctx, newSignal("a", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)
	_, err = svc.UpdateSignalOutcome(ctx, "a", outcome(models.TrendUp))
	require.NoError(t, err)
	require.Len(t, archive.records, 2)
	assert.Equal(t, models.StatusActive, archive.records[0].Status)
	assert.Equal(t, models.StatusCompleted, archive.records[1].Status)

	archive.err = errors.New("clickhouse down")
	_, err = svc.AddSignalToHistory(ctx, newSignal("b", "BTC", models.SignalBuy, 8, 0.85, t0))
	assert.NoError(t, err)
}

func TestClearHistory(t *testing.T) {
	svc, _, clk := newService()
	ctx := context.Background()
	_, err := svc.AddSignalToHistory(ctx, newSignal("old", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)
	_, err = svc.AddSignalToHistory(ctx, newSignal("new", "BTC", models.SignalBuy, 8, 0.85, t0.Add(72*time.Hour)))
	require.NoError(t, err)
	clk.Advance(80 * time.Hour)

	_, err = svc.ClearHistory(ctx, -1)
	assert.ErrorIs(t, err, models.ErrValidation)

	n, err := svc.ClearHistory(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.ClearHistory(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExport(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	_, err := svc.AddSignalToHistory(ctx, newSignal("a", "BTC", models.SignalBuy, 8, 0.85, t0))
	require.NoError(t, err)
	_, err = svc.UpdateSignalOutcome(ctx, "a", outcome(models.TrendDown))
	require.NoError(t, err)

	data, err := svc.Export(ctx, FormatJSON)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "hist_0_a", decoded[0]["history_id"])
	assert.Equal(t, 0.0, decoded[0]["accuracy"])

	data, err = svc.Export(ctx, FormatCSV)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "down", rows[1][11])
	assert.Equal(t, "0", rows[1][12])

	_, err = svc.Export(ctx, "xml")
	assert.ErrorIs(t, err, models.ErrValidation)
}
