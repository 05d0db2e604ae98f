// Package securitylog records every authentication-relevant decision for
// audit. Recording is asynchronous and never fails or blocks the operation
// that produced the event.
package securitylog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webstack-labs/auth_gateway/internal/metrics"
)

const (
	DefaultBuffer   = 1024
	DefaultPageSize = 50
	appendTimeout   = 5 * time.Second
)

// Severity classifies an entry for the alerting path.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityHigh Severity = "high"
)

// Entry is one append-only security log record.
type Entry struct {
	ID          string                 `json:"id"`
	Action      string                 `json:"action"`
	AccountID   string                 `json:"accountId,omitempty"`
	EmailMasked string                 `json:"email,omitempty"`
	Success     bool                   `json:"success"`
	Detail      string                 `json:"detail,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Severity    Severity               `json:"severity"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Store persists entries. Ordering is insertion order; entries are never
// mutated or deleted.
type Store interface {
	AppendEntry(ctx context.Context, entry Entry) error
	QueryByAccount(ctx context.Context, accountID string, limit int) ([]Entry, error)
	QueryByAction(ctx context.Context, action string, limit int) ([]Entry, error)
}

// AlertFunc receives high-severity entries out of band of routine storage.
type AlertFunc func(entry Entry)

// Recorder accepts entries on a buffered queue and drains them to the store
// on a background goroutine. A full queue drops the entry and bumps a
// counter; it never pushes back on the caller.
type Recorder struct {
	store Store
	alert AlertFunc

	queue   chan Entry
	once    sync.Once
	stopped atomic.Bool
	dropped atomic.Uint64

	wg sync.WaitGroup
}

// NewRecorder builds a Recorder. alert may be nil.
func NewRecorder(store Store, buffer int, alert AlertFunc) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		store: store,
		alert: alert,
		queue: make(chan Entry, buffer),
	}
}

// Start launches the drain goroutine. Safe to call more than once.
func (r *Recorder) Start() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

// Stop closes the queue and waits for the drain goroutine, bounded by ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(r.queue)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("security log stop: %w", ctx.Err())
	}
}

// Dropped reports how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Record enqueues an entry. It never blocks and never surfaces a failure to
// the authentication path. High-severity entries additionally trigger the
// alert hook immediately, before storage.
func (r *Recorder) Record(entry Entry) bool {
	if r == nil || r.stopped.Load() {
		return false
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	metrics.RecordSecurityEvent(entry.Action)

	if entry.Severity == SeverityHigh && r.alert != nil {
		r.alert(entry)
	}

	select {
	case r.queue <- entry:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for entry := range r.queue {
		if r.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		_ = r.store.AppendEntry(ctx, entry)
		cancel()
	}
}

// MaskEmail keeps the first two characters of the local part and the full
// domain: "ab@example.com" becomes "ab***@example.com". Local parts of two
// characters or fewer are kept whole before the mask.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***" + domain
}
