package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
)

// MemoryRuleRepository keeps rules in insertion order.
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	order []string
	rules map[string]*models.Rule
}

func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: make(map[string]*models.Rule)}
}

var _ repository.RuleRepository = (*MemoryRuleRepository)(nil)

func (r *MemoryRuleRepository) Save(_ context.Context, rule *models.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.RuleID]; !ok {
		r.order = append(r.order, rule.RuleID)
	}
	r.rules[rule.RuleID] = rule.Clone()
	return nil
}

func (r *MemoryRuleRepository) Get(_ context.Context, id string) (*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, models.NotFound("rule", id)
	}
	return rule.Clone(), nil
}

func (r *MemoryRuleRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return false, nil
	}
	delete(r.rules, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *MemoryRuleRepository) List(_ context.Context) ([]*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Rule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id].Clone())
	}
	return out, nil
}

// MemoryHistoryRepository is the bounded in-process signal history. When the
// bound is reached the oldest entries are dropped together with their
// tracking, so both maps stay within maxSize.
type MemoryHistoryRepository struct {
	mu       sync.RWMutex
	maxSize  int
	seq      int64
	order    []string
	entries  map[string]*models.HistoryEntry
	tracking map[string]*models.AccuracyTracking
}

func NewMemoryHistoryRepository(maxSize int) *MemoryHistoryRepository {
	return &MemoryHistoryRepository{
		maxSize:  maxSize,
		entries:  make(map[string]*models.HistoryEntry),
		tracking: make(map[string]*models.AccuracyTracking),
	}
}

var _ repository.HistoryRepository = (*MemoryHistoryRepository)(nil)

func (r *MemoryHistoryRepository) Append(_ context.Context, entry *models.HistoryEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.SignalID]; ok {
		return 0, fmt.Errorf("signal %s already in history: %w", entry.SignalID, models.ErrConflict)
	}
	stored := entry.Clone()
	stored.HistoryID = models.HistoryID(r.seq, entry.SignalID)
	r.seq++
	r.entries[entry.SignalID] = stored
	r.order = append(r.order, entry.SignalID)
	if _, ok := r.tracking[entry.SignalID]; !ok {
		r.tracking[entry.SignalID] = &models.AccuracyTracking{SignalID: entry.SignalID, Predictions: []models.PredictionRecord{}}
	}
	if r.maxSize > 0 && len(r.order) > r.maxSize {
		drop := len(r.order) - r.maxSize
		for _, id := range r.order[:drop] {
			delete(r.entries, id)
			delete(r.tracking, id)
		}
		r.order = append([]string(nil), r.order[drop:]...)
	}
	return r.seq - 1, nil
}

func (r *MemoryHistoryRepository) Get(_ context.Context, signalID string) (*models.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[signalID]
	if !ok {
		return nil, models.NotFound("signal", signalID)
	}
	return e.Clone(), nil
}

// Update runs fn on copies and commits both only when fn succeeds.
func (r *MemoryHistoryRepository) Update(_ context.Context, signalID string, fn repository.HistoryMutation) (*models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[signalID]
	if !ok {
		return nil, models.NotFound("signal", signalID)
	}
	entry := e.Clone()
	tracking := r.tracking[signalID].Clone()
	if tracking == nil {
		tracking = &models.AccuracyTracking{SignalID: signalID}
	}
	if err := fn(entry, tracking); err != nil {
		return nil, err
	}
	r.entries[signalID] = entry
	r.tracking[signalID] = tracking
	return entry.Clone(), nil
}

func (r *MemoryHistoryRepository) List(_ context.Context) ([]*models.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.HistoryEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Clone())
	}
	return out, nil
}

func (r *MemoryHistoryRepository) Tracking(_ context.Context) (map[string]*models.AccuracyTracking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*models.AccuracyTracking, len(r.tracking))
	for id, t := range r.tracking {
		out[id] = t.Clone()
	}
	return out, nil
}

// DeleteBefore drops entries stamped before cutoff, or everything when
// cutoff is zero. Tracking is cleared with them.
func (r *MemoryHistoryRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cutoff.IsZero() {
		n := len(r.order)
		r.order = nil
		r.entries = make(map[string]*models.HistoryEntry)
		r.tracking = make(map[string]*models.AccuracyTracking)
		return n, nil
	}
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		if r.entries[id].Timestamp.Before(cutoff) {
			delete(r.entries, id)
			delete(r.tracking, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed, nil
}

// MemoryNotificationRepository keeps a bounded dispatch log per user.
type MemoryNotificationRepository struct {
	mu     sync.RWMutex
	limit  int
	seq    int64
	byUser map[string][]stampedNotification
}

type stampedNotification struct {
	seq int64
	n   *models.Notification
}

func NewMemoryNotificationRepository(limitPerUser int) *MemoryNotificationRepository {
	return &MemoryNotificationRepository{limit: limitPerUser, byUser: make(map[string][]stampedNotification)}
}

var _ repository.NotificationRepository = (*MemoryNotificationRepository)(nil)

func (r *MemoryNotificationRepository) Append(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	list := append(r.byUser[n.UserID], stampedNotification{seq: r.seq, n: cloneNotification(n)})
	if r.limit > 0 && len(list) > r.limit {
		list = append([]stampedNotification(nil), list[len(list)-r.limit:]...)
	}
	r.byUser[n.UserID] = list
	return nil
}

func (r *MemoryNotificationRepository) Recent(_ context.Context, userID string, limit int) ([]*models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var merged []stampedNotification
	if userID != "" {
		merged = r.byUser[userID]
	} else {
		for _, list := range r.byUser {
			merged = append(merged, list...)
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].seq < merged[j].seq })
	}
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	out := make([]*models.Notification, len(merged))
	for i, s := range merged {
		out[i] = cloneNotification(s.n)
	}
	return out, nil
}

func (r *MemoryNotificationRepository) Clear(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID != "" {
		n := len(r.byUser[userID])
		delete(r.byUser, userID)
		return n, nil
	}
	n := 0
	for _, list := range r.byUser {
		n += len(list)
	}
	r.byUser = make(map[string][]stampedNotification)
	return n, nil
}

func cloneNotification(n *models.Notification) *models.Notification {
	c := *n
	c.Content.Data = models.CloneMap(n.Content.Data)
	c.Channels = make(map[string]models.ChannelResult, len(n.Channels))
	for k, v := range n.Channels {
		c.Channels[k] = v
	}
	return &c
}
