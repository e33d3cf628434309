package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
	"arrdeck-go/internal/events"
	"arrdeck-go/internal/storage"
)

// DeferredEntry is one queued summary awaiting a digest flush.
type DeferredEntry struct {
	Summary   string `json:"summary"`
	CreatedAt int64  `json:"created_at"` // epoch millis
}

// QueueStore is the persistence seam for the deferred queue blob.
type QueueStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
}

// SettingsSource provides the current notification settings. Read
// synchronously; the caller keeps it hydrated.
type SettingsSource interface {
	NotificationSettings() *config.NotificationConfig
}

// Service is the notification pipeline. In-memory queues are the source of
// truth during a session and are written through to storage on every
// mutation. Flush timers are in-memory only: they do not survive a restart,
// so the host MUST call FlushDueSummaries on startup and on every
// foreground/resume transition to catch windows that closed while the
// process was down.
type Service struct {
	mu          sync.Mutex
	queues      map[string][]DeferredEntry
	flushTimers map[string]*time.Timer
	lastStatus  map[string]types.HealthStatus

	pusher   Pusher
	store    QueueStore
	settings SettingsSource
	eventBus *events.Bus
	logger   *zap.Logger

	now func() time.Time
}

// NewService builds the pipeline and loads any persisted deferred queues.
// Queue read failures degrade to empty state; they never block delivery.
func NewService(pusher Pusher, store QueueStore, settings SettingsSource, logger *zap.Logger) *Service {
	s := &Service{
		queues:      make(map[string][]DeferredEntry),
		flushTimers: make(map[string]*time.Timer),
		lastStatus:  make(map[string]types.HealthStatus),
		pusher:      pusher,
		store:       store,
		settings:    settings,
		logger:      logger,
		now:         time.Now,
	}
	s.loadQueues()
	return s
}

// SetEventBus sets the bus for observability events.
func (s *Service) SetEventBus(bus *events.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventBus = bus
}

func (s *Service) publish(eventType events.EventType, category string) {
	s.mu.Lock()
	bus := s.eventBus
	s.mu.Unlock()
	if bus != nil {
		bus.Publish(events.Event{Type: eventType, Data: map[string]string{"category": category}})
	}
}

func (s *Service) loadQueues() {
	if s.store == nil {
		return
	}

	blob, ok, err := s.store.GetItem(storage.NotifyQueueKey)
	if err != nil {
		s.logger.Warn("Failed to read deferred notification queues, starting empty", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	var queues map[string][]DeferredEntry
	if err := json.Unmarshal([]byte(blob), &queues); err != nil {
		s.logger.Warn("Deferred notification queue blob unreadable, starting empty", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.queues = queues
	s.mu.Unlock()
}

// persistQueues writes the current queues through to storage. Write failures
// are logged and otherwise ignored. Caller must hold s.mu.
func (s *Service) persistQueuesLocked() {
	if s.store == nil {
		return
	}

	blob, err := json.Marshal(s.queues)
	if err != nil {
		s.logger.Warn("Failed to encode deferred notification queues", zap.Error(err))
		return
	}
	if err := s.store.SetItem(storage.NotifyQueueKey, string(blob)); err != nil {
		s.logger.Warn("Failed to persist deferred notification queues", zap.Error(err))
	}
}

func (s *Service) quietConfig(category string) *config.QuietHoursConfig {
	settings := s.settings.NotificationSettings()
	if settings == nil || settings.QuietHours == nil {
		return nil
	}
	return settings.QuietHours[category]
}

// DeliverOptions tweaks one delivery.
type DeliverOptions struct {
	// BypassQuietHours delivers immediately regardless of the window; used
	// for critical offline alerts when the user opted into bypass.
	BypassQuietHours bool
}

// DeliverNotification is the core decision point: deliver msg now, or defer
// its summary into the category queue until the quiet window ends.
func (s *Service) DeliverNotification(ctx context.Context, category string, msg *Message, summary string, opts DeliverOptions) Outcome {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Category = category

	qh := s.quietConfig(category)
	quietNow := IsQuietHoursActive(qh, s.now())

	if opts.BypassQuietHours || qh == nil || !qh.Enabled || !quietNow {
		s.push(ctx, msg)
		// Already outside the window (or bypassing): drain anything that
		// queued up earlier. flushIfEligible rechecks the window itself,
		// so the bypass path cannot leak a digest into quiet hours.
		s.flushIfEligible(ctx, category)
		s.publish(events.NotificationDelivered, category)
		return Delivered
	}

	s.enqueue(category, summary)
	if end, ok := NextQuietHoursEnd(qh, s.now()); ok {
		s.scheduleFlush(category, end)
	}
	s.publish(events.NotificationDeferred, category)
	return Deferred
}

// enqueue appends a summary to the bounded category queue and persists.
func (s *Service) enqueue(category, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := append(s.queues[category], DeferredEntry{
		Summary:   summary,
		CreatedAt: s.now().UnixMilli(),
	})
	if len(q) > config.MaxDeferredPerCategory {
		q = q[len(q)-config.MaxDeferredPerCategory:]
	}
	s.queues[category] = q
	s.persistQueuesLocked()

	s.logger.Debug("Deferred notification",
		zap.String("category", category),
		zap.Int("queue_len", len(q)))
}

// QueueLen returns the current deferred queue length for a category.
func (s *Service) QueueLen(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[category])
}

func (s *Service) scheduleFlush(category string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.flushTimers[category]; ok {
		t.Stop()
	}

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.flushTimers[category] = time.AfterFunc(delay, func() {
		s.flushIfEligible(context.Background(), category)
	})

	s.logger.Debug("Scheduled deferred flush",
		zap.String("category", category),
		zap.Time("at", at))
}

func (s *Service) cancelTimerLocked(category string) {
	if t, ok := s.flushTimers[category]; ok {
		t.Stop()
		delete(s.flushTimers, category)
	}
}

// flushIfEligible flushes the category queue as one digest when the queue is
// non-empty and the window is over. Still inside quiet hours it reschedules;
// an empty queue just cancels any pending timer.
func (s *Service) flushIfEligible(ctx context.Context, category string) {
	s.mu.Lock()
	q := s.queues[category]
	if len(q) == 0 {
		s.cancelTimerLocked(category)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	qh := s.quietConfig(category)
	if IsQuietHoursActive(qh, s.now()) {
		if end, ok := NextQuietHoursEnd(qh, s.now()); ok {
			s.scheduleFlush(category, end)
		}
		return
	}

	digest := s.buildDigest(category, q)
	s.push(ctx, digest)

	s.mu.Lock()
	// Entries deferred while the digest was in flight stay queued for the
	// next flush; only the snapshot that was just sent is removed.
	rest := s.queues[category]
	if len(q) < len(rest) {
		rest = rest[len(q):]
	} else {
		rest = nil
	}
	if len(rest) == 0 {
		delete(s.queues, category)
		s.cancelTimerLocked(category)
	} else {
		s.queues[category] = rest
	}
	s.persistQueuesLocked()
	s.mu.Unlock()

	s.logger.Info("Flushed deferred notifications",
		zap.String("category", category),
		zap.Int("count", len(q)))
	s.publish(events.NotificationFlushed, category)
}

// buildDigest collapses queued entries into one summarizing message: up to
// the last DigestMaxSummaries summaries newest-first, with the total count in
// the title even when truncated.
func (s *Service) buildDigest(category string, entries []DeferredEntry) *Message {
	shown := len(entries)
	if shown > config.DigestMaxSummaries {
		shown = config.DigestMaxSummaries
	}

	lines := make([]string, 0, shown)
	for i := len(entries) - 1; i >= len(entries)-shown; i-- {
		lines = append(lines, entries[i].Summary)
	}

	return &Message{
		ID:       uuid.NewString(),
		Title:    fmt.Sprintf("While you were away: %d %s updates", len(entries), categoryLabel(category)),
		Body:     strings.Join(lines, "\n"),
		Category: category,
	}
}

func categoryLabel(category string) string {
	switch category {
	case CategoryDownloads:
		return "download"
	case CategoryRequests:
		return "request"
	case CategoryServiceHealth:
		return "service"
	default:
		return category
	}
}

// push hands a message to the transport. Failures are logged, never
// propagated, and never roll back queue mutations.
func (s *Service) push(ctx context.Context, msg *Message) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(ctx, msg); err != nil {
		s.logger.Warn("Push delivery failed",
			zap.String("category", msg.Category),
			zap.String("title", msg.Title),
			zap.Error(err))
	}
}

// FlushDueSummaries re-evaluates every category's queue against the current
// settings and clock. Called on startup and app foreground/resume to catch
// flush timers that never fired.
func (s *Service) FlushDueSummaries(ctx context.Context) {
	for _, category := range s.categoriesWithQueues() {
		s.flushIfEligible(ctx, category)
	}
}

// OnQuietHoursChanged re-evaluates all queues after a schedule edit, so a
// just-disabled window flushes immediately instead of waiting for a stale
// timer.
func (s *Service) OnQuietHoursChanged(ctx context.Context) {
	for _, category := range Categories() {
		s.flushIfEligible(ctx, category)
	}
}

func (s *Service) categoriesWithQueues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.queues))
	for category := range s.queues {
		out = append(out, category)
	}
	return out
}

// Close stops all pending flush timers.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for category, t := range s.flushTimers {
		t.Stop()
		delete(s.flushTimers, category)
	}
}

// Domain formatters. Each checks the relevant toggles, builds the
// human-readable message and summary, and routes through
// DeliverNotification.

// NotifyDownloadCompleted announces a finished download.
func (s *Service) NotifyDownloadCompleted(ctx context.Context, serviceName, itemName string) {
	settings := s.settings.NotificationSettings()
	if settings == nil || !settings.Enabled || !settings.Downloads {
		return
	}

	msg := &Message{
		Title: "Download complete",
		Body:  fmt.Sprintf("%s finished downloading on %s", itemName, serviceName),
		Data:  map[string]string{"service": serviceName, "item": itemName},
	}
	s.DeliverNotification(ctx, CategoryDownloads, msg, fmt.Sprintf("%s completed", itemName), DeliverOptions{})
}

// NotifyDownloadFailed announces a failed download.
func (s *Service) NotifyDownloadFailed(ctx context.Context, serviceName, itemName, reason string) {
	settings := s.settings.NotificationSettings()
	if settings == nil || !settings.Enabled || !settings.Downloads {
		return
	}

	body := fmt.Sprintf("%s failed on %s", itemName, serviceName)
	if reason != "" {
		body += ": " + reason
	}
	msg := &Message{
		Title: "Download failed",
		Body:  body,
		Data:  map[string]string{"service": serviceName, "item": itemName},
	}
	s.DeliverNotification(ctx, CategoryDownloads, msg, fmt.Sprintf("%s failed", itemName), DeliverOptions{})
}

// NotifyNewRequest announces a new media request.
func (s *Service) NotifyNewRequest(ctx context.Context, requester, itemName string) {
	settings := s.settings.NotificationSettings()
	if settings == nil || !settings.Enabled || !settings.Requests {
		return
	}

	msg := &Message{
		Title: "New request",
		Body:  fmt.Sprintf("%s requested %s", requester, itemName),
		Data:  map[string]string{"requester": requester, "item": itemName},
	}
	s.DeliverNotification(ctx, CategoryRequests, msg, fmt.Sprintf("%s requested by %s", itemName, requester), DeliverOptions{})
}

// NotifyServiceStatusChange announces health transitions. Unchanged status is
// suppressed. Becoming offline or degraded alerts; recovering from offline to
// healthy sends a resolution message; a degraded-to-healthy transition that
// was never offline stays silent, matching long-standing behavior.
func (s *Service) NotifyServiceStatusChange(ctx context.Context, serviceID, serviceName string, status types.HealthStatus, detail string) {
	settings := s.settings.NotificationSettings()
	if settings == nil || !settings.Enabled || !settings.ServiceHealth {
		return
	}

	s.mu.Lock()
	previous, seen := s.lastStatus[serviceID]
	s.lastStatus[serviceID] = status
	s.mu.Unlock()

	if seen && previous == status {
		return
	}

	switch {
	case status == types.HealthOffline || status == types.HealthDegraded:
		title := fmt.Sprintf("%s is %s", serviceName, status)
		body := title
		if detail != "" {
			body = fmt.Sprintf("%s: %s", title, detail)
		}
		msg := &Message{
			Title: title,
			Body:  body,
			Data:  map[string]string{"service_id": serviceID, "status": string(status)},
		}
		opts := DeliverOptions{
			BypassQuietHours: status == types.HealthOffline && settings.CriticalBypass,
		}
		s.DeliverNotification(ctx, CategoryServiceHealth, msg, title, opts)

	case status == types.HealthHealthy && previous == types.HealthOffline:
		title := fmt.Sprintf("%s is back online", serviceName)
		msg := &Message{
			Title: title,
			Body:  title,
			Data:  map[string]string{"service_id": serviceID, "status": string(status)},
		}
		s.DeliverNotification(ctx, CategoryServiceHealth, msg, title, DeliverOptions{})
	}
}
