// Package ratelimit tracks consumption of the rate-limited confirmation
// service. Quota signals from response headers are folded into an
// in-process window that is flushed to a bounded store only when the next
// window's reset time is first observed.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/internal/metrics"
	"github.com/telhawk-systems/openport/internal/models"
)

const (
	DefaultKey          = "ratelimit"
	DefaultCapacity     = 576
	DefaultTrimInterval = time.Hour
)

// Quota headers carried by confirmation service responses.
const (
	HeaderReset     = "X-RateLimit-Reset"
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
)

// Config controls the bounded history.
type Config struct {
	Capacity     int64
	TrimInterval time.Duration
}

type window struct {
	end   int64
	used  int64
	limit int64
}

// Ledger is the usage ledger. Use Shared to obtain the process-wide
// instance; New exists for tests and tools that own their lifecycle.
type Ledger struct {
	store  Store
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	current *window

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	stopped   chan struct{}
}

// New creates a ledger without starting the trim task.
func New(store Store, cfg Config, logger *logging.Logger) *Ledger {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TrimInterval <= 0 {
		cfg.TrimInterval = DefaultTrimInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

var shared struct {
	once   sync.Once
	ledger *Ledger
	err    error
}

// Shared returns the process-wide ledger. The first call constructs it,
// runs the initial trim and schedules the recurring trim; later calls
// return the same instance and ignore their arguments.
func Shared(ctx context.Context, store Store, cfg Config, logger *logging.Logger) (*Ledger, error) {
	shared.once.Do(func() {
		shared.ledger = New(store, cfg, logger)
		shared.err = shared.ledger.Start(ctx)
	})
	return shared.ledger, shared.err
}

// Start runs the initial trim and launches the periodic trim loop. Only the
// first call has any effect. The loop keeps running when the initial trim
// fails; that error is returned for the caller to report.
func (l *Ledger) Start(ctx context.Context) error {
	var err error
	l.startOnce.Do(func() {
		l.started.Store(true)
		err = l.Trim(ctx)
		go l.trimLoop(ctx)
	})
	return err
}

// Stop halts the trim loop started by Start and waits for it to exit.
func (l *Ledger) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	if l.started.Load() {
		<-l.stopped
	}
}

func (l *Ledger) trimLoop(ctx context.Context) {
	defer close(l.stopped)

	ticker := time.NewTicker(l.cfg.TrimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.Trim(ctx); err != nil {
				l.logger.WarnContext(ctx, "quota ledger trim failed", logging.Error(err))
			}
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Trim cuts the store down to its capacity, dropping the oldest samples.
func (l *Ledger) Trim(ctx context.Context) error {
	if err := l.store.TrimToNewest(ctx, l.cfg.Capacity); err != nil {
		metrics.LedgerTrims.WithLabelValues("error").Inc()
		return err
	}
	metrics.LedgerTrims.WithLabelValues("ok").Inc()
	return nil
}

// RecordHeaders records the quota signal carried by a response's headers.
func (l *Ledger) RecordHeaders(ctx context.Context, h http.Header) error {
	if h == nil {
		return nil
	}
	return l.RecordSample(ctx, h.Get(HeaderReset), h.Get(HeaderLimit), h.Get(HeaderRemaining))
}

// RecordSample folds one quota signal into the ledger. Absent or
// unparseable values make the call a no-op. When the reset time differs
// from the open window's, the open window is written to the store before
// being replaced.
func (l *Ledger) RecordSample(ctx context.Context, reset, limit, remaining string) error {
	end, ok := parseQuotaValue(reset)
	if !ok {
		return nil
	}
	lim, ok := parseQuotaValue(limit)
	if !ok {
		return nil
	}
	rem, ok := parseQuotaValue(remaining)
	if !ok {
		return nil
	}
	used := lim - rem

	l.mu.Lock()
	var flush *models.QuotaSample
	if l.current != nil && l.current.end != end {
		flush = &models.QuotaSample{
			WindowEnd: l.current.end,
			Used:      l.current.used,
			Limit:     l.current.limit,
		}
	}
	l.current = &window{end: end, used: used, limit: lim}
	l.mu.Unlock()

	metrics.QuotaUsed.Set(float64(used))
	metrics.QuotaLimit.Set(float64(lim))

	if flush == nil {
		return nil
	}

	if err := l.store.Add(ctx, *flush); err != nil {
		return fmt.Errorf("flush quota window %d: %w", flush.WindowEnd, err)
	}
	metrics.QuotaSamplesFlushed.Inc()
	l.logger.DebugContext(ctx, "quota window flushed",
		logging.WindowEnd(flush.WindowEnd),
		"used", flush.Used,
		"limit", flush.Limit)
	return nil
}

// Pending returns the open, not yet flushed window.
func (l *Ledger) Pending() (models.QuotaSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return models.QuotaSample{}, false
	}
	return models.QuotaSample{
		WindowEnd: l.current.end,
		Used:      l.current.used,
		Limit:     l.current.limit,
	}, true
}

// Samples returns the flushed history, oldest first.
func (l *Ledger) Samples(ctx context.Context) ([]models.QuotaSample, error) {
	return l.store.Samples(ctx)
}

// Capacity returns the configured store capacity.
func (l *Ledger) Capacity() int64 {
	return l.cfg.Capacity
}

func parseQuotaValue(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
