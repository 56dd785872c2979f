package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
)

const DefaultLimit = 100

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Component("history_service")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithArchive mirrors every state change to a. Archive failures are logged only.
func WithArchive(a repository.HistoryArchive) Option {
	return func(s *Service) { s.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the signal history store and the accuracy feedback loop.
// Status moves active -> completed | expired | canceled, never back.
type Service struct {
	repo    repository.HistoryRepository
	locker  repository.KeyLocker
	archive repository.HistoryArchive
	metrics repository.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(repo repository.HistoryRepository, locker repository.KeyLocker, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		locker:  locker,
		metrics: metrics.Nop{},
		logger:  logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSignalToHistory stores a copy of sig as active with no outcome.
func (s *Service) AddSignalToHistory(ctx context.Context, sig *models.Signal) (*models.HistoryEntry, error) {
	if err := sig.Validate(); err != nil {
		s.logger.Warn("history add rejected", logger.String("reason", "validation"), logger.Error(err))
		return nil, err
	}
	entry := &models.HistoryEntry{Signal: *sig.Clone(), AddedToHistoryAt: s.now()}
	entry.Status = models.StatusActive
	// Level and description are functions of strength and confidence; a
	// caller-supplied value is never trusted.
	entry.Level = models.DeriveLevel(entry.Strength, entry.Confidence)
	entry.Description = models.DeriveDescription(&entry.Signal)

	seq, err := s.repo.Append(ctx, entry)
	if err != nil {
		s.logger.Warn("history add failed", logger.String("signal_id", sig.SignalID), logger.Error(err))
		return nil, err
	}
	entry.HistoryID = models.HistoryID(seq, sig.SignalID)
	s.mirror(ctx, entry)

	s.logger.Info("signal added to history",
		logger.String("signal_id", sig.SignalID),
		logger.String("history_id", entry.HistoryID),
	)
	return entry, nil
}

// UpdateSignalOutcome completes an active signal and scores it. A signal past
// its expiry time but not yet swept still completes. Terminal signals return
// ErrConflict.
func (s *Service) UpdateSignalOutcome(ctx context.Context, signalID string, outcome models.Outcome) (*models.HistoryEntry, error) {
	if err := outcome.Normalize(); err != nil {
		s.logger.Warn("outcome rejected", logger.String("reason", "validation"), logger.String("signal_id", signalID), logger.Error(err))
		return nil, err
	}
	if outcome.PriceChange != nil {
		pc := *outcome.PriceChange
		outcome.PriceChange = &pc
	}
	start := s.now()

	unlock, err := s.locker.Lock(ctx, "history:"+signalID)
	if err != nil {
		return nil, fmt.Errorf("lock signal %s: %w", signalID, err)
	}
	defer unlock()

	now := s.now()
	var accuracy float64
	entry, err := s.repo.Update(ctx, signalID, func(e *models.HistoryEntry, t *models.AccuracyTracking) error {
		if e.Status.Terminal() {
			return fmt.Errorf("signal %s is already %s: %w", signalID, e.Status, models.ErrConflict)
		}
		accuracy = OutcomeAccuracy(e.Type, outcome.ActualOutcome)
		o := outcome
		e.Status = models.StatusCompleted
		e.Outcome = &o
		e.Accuracy = &accuracy
		e.OutcomeUpdatedAt = &now
		t.Record(outcome.ActualOutcome, accuracy, now)
		return nil
	})
	if err != nil {
		s.logger.Warn("outcome update failed", logger.String("signal_id", signalID), logger.Error(err))
		return nil, err
	}

	s.metrics.RecordOutcome(string(entry.Type), accuracy)
	s.metrics.RecordLatency("update_outcome", s.now().Sub(start).Seconds())
	s.mirror(ctx, entry)
	s.logger.Info("signal outcome recorded",
		logger.String("signal_id", signalID),
		logger.String("actual_outcome", outcome.ActualOutcome),
		logger.Float64("accuracy", accuracy),
	)
	return entry, nil
}

// CancelSignal moves an active, unexpired signal to canceled.
func (s *Service) CancelSignal(ctx context.Context, signalID string) (*models.HistoryEntry, error) {
	unlock, err := s.locker.Lock(ctx, "history:"+signalID)
	if err != nil {
		return nil, fmt.Errorf("lock signal %s: %w", signalID, err)
	}
	defer unlock()

	now := s.now()
	entry, err := s.repo.Update(ctx, signalID, func(e *models.HistoryEntry, _ *models.AccuracyTracking) error {
		if e.Status.Terminal() {
			return fmt.Errorf("signal %s is already %s: %w", signalID, e.Status, models.ErrConflict)
		}
		if e.ExpiredAt(now) {
			return fmt.Errorf("signal %s has expired: %w", signalID, models.ErrConflict)
		}
		e.Status = models.StatusCanceled
		e.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, entry)
	s.logger.Info("signal canceled", logger.String("signal_id", signalID))
	return entry, nil
}

// SweepExpired persists status=expired for every active signal whose expiry
// time has passed and returns how many changed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	swept := 0
	for _, candidate := range entries {
		if candidate.Status != models.StatusActive || !candidate.ExpiredAt(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		entry, changed, err := s.expire(ctx, candidate.SignalID, now)
		if err != nil {
			s.logger.Warn("expiry sweep skipped signal", logger.String("signal_id", candidate.SignalID), logger.Error(err))
			continue
		}
		if changed {
			swept++
			s.mirror(ctx, entry)
		}
	}
	if swept > 0 {
		s.logger.Info("expired signals swept", logger.Int("count", swept))
	}
	return swept, nil
}

func (s *Service) expire(ctx context.Context, signalID string, now time.Time) (*models.HistoryEntry, bool, error) {
	unlock, err := s.locker.Lock(ctx, "history:"+signalID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	changed := false
	entry, err := s.repo.Update(ctx, signalID, func(e *models.HistoryEntry, _ *models.AccuracyTracking) error {
		if e.Status == models.StatusActive && e.ExpiredAt(now) {
			e.Status = models.StatusExpired
			e.UpdatedAt = &now
			changed = true
		}
		return nil
	})
	return entry, changed, err
}

// GetSignal returns one entry with lazy expiry applied.
func (s *Service) GetSignal(ctx context.Context, signalID string) (*models.HistoryEntry, error) {
	e, err := s.repo.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	return s.view(e, s.now()), nil
}

// GetSignalHistory returns matching entries newest first, at most limit
// (DefaultLimit when limit <= 0).
func (s *Service) GetSignalHistory(ctx context.Context, filter models.HistoryFilter, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClearHistory drops entries older than the given number of days, or all
// entries when days is 0.
func (s *Service) ClearHistory(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, models.NewValidationError("older_than_days", "older_than_days must not be negative")
	}
	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = s.now().AddDate(0, 0, -olderThanDays)
	}
	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("history cleared", logger.Int("older_than_days", olderThanDays), logger.Int("removed", n))
	return n, nil
}

// entries lists the store with lazy expiry applied.
func (s *Service) entries(ctx context.Context) ([]*models.HistoryEntry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i, e := range entries {
		entries[i] = s.view(e, now)
	}
	return entries, nil
}

func (s *Service) view(e *models.HistoryEntry, now time.Time) *models.HistoryEntry {
	if e.Status == models.StatusActive && e.ExpiredAt(now) {
		e.Status = models.StatusExpired
	}
	return e
}

func (s *Service) mirror(ctx context.Context, e *models.HistoryEntry) {
	if s.archive == nil || e == nil {
		return
	}
	if err := s.archive.Record(ctx, e); err != nil {
		s.metrics.RecordError("history_archive")
		s.logger.Warn("history archive write failed", logger.String("signal_id", e.SignalID), logger.Error(err))
	}
}
