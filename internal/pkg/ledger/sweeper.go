package ledger

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/internal/pkg/cache"
	"github.com/schoolpay/schoolpay/internal/pkg/env"
	"github.com/schoolpay/schoolpay/internal/pkg/reconcile"
)

const (
	sweepLockKey   = "webhook_retry_sweep_lock"
	sweepLockTTL   = 5 * time.Minute
	sweepBatchSize = 50

	// stuckRetryAge must exceed both the attempt timeout and the sweep lease
	// TTL, so only entries from a genuinely dead worker are reclaimed.
	stuckRetryAge = 10 * time.Minute
)

// ErrSweepActive is returned when another sweep currently holds the lease.
var ErrSweepActive = errors.New("retry sweep already running")

var (
	defaultSweeper   *Sweeper
	defaultSweeperMu sync.RWMutex
)

// SetDefaultSweeper registers the process-wide sweeper used by the manual
// retry endpoint.
func SetDefaultSweeper(s *Sweeper) {
	defaultSweeperMu.Lock()
	defer defaultSweeperMu.Unlock()
	defaultSweeper = s
}

// DefaultSweeper returns the registered sweeper, or nil before startup wiring.
func DefaultSweeper() *Sweeper {
	defaultSweeperMu.RLock()
	defer defaultSweeperMu.RUnlock()
	return defaultSweeper
}

// Processor re-drives the normalization + reconciliation path for a stored
// payload. Satisfied by *reconcile.Service.
type Processor interface {
	ProcessRaw(ctx context.Context, gateway string, payload []byte) (*reconcile.Result, error)
}

// locker serializes sweeps across processes. The default implementation is
// the shared redis lock.
type locker interface {
	Acquire(key string, ttl time.Duration) (bool, error)
	Release(key string) error
}

type cacheLocker struct{}

func (cacheLocker) Acquire(key string, ttl time.Duration) (bool, error) {
	return cache.AcquireLock(key, ttl)
}

func (cacheLocker) Release(key string) error {
	return cache.ReleaseLock(key)
}

// RetryResult reports the fate of one replayed ledger entry.
type RetryResult struct {
	WebhookID   string     `json:"webhook_id"`
	Outcome     string     `json:"outcome"`
	Error       string     `json:"error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// SweepSummary aggregates one sweep invocation for the operator endpoint.
type SweepSummary struct {
	Processed   int           `json:"processed"`
	Successful  int           `json:"successful"`
	Rescheduled int           `json:"rescheduled"`
	Exhausted   int           `json:"exhausted"`
	Results     []RetryResult `json:"results"`
}

// Sweeper periodically replays failed ledger entries. Sweeps are serialized
// through a redis lease, and each entry is additionally claimed with a
// conditional status flip, so overlapping invocations cannot double-process
// a row.
type Sweeper struct {
	ledger         *Service
	processor      Processor
	lock           locker
	interval       time.Duration
	attemptTimeout time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSweeper wires the retry sweeper from explicit collaborators. Interval
// and per-attempt timeout come from the environment with sane defaults.
func NewSweeper(ledger *Service, processor Processor) *Sweeper {
	interval := 2 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("WEBHOOK_RETRY_INTERVAL_SECONDS", "")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Second
	}
	attemptTimeout := 30 * time.Second
	if v, err := strconv.Atoi(env.GetEnv("WEBHOOK_RETRY_ATTEMPT_TIMEOUT_SECONDS", "")); err == nil && v > 0 {
		attemptTimeout = time.Duration(v) * time.Second
	}

	return &Sweeper{
		ledger:         ledger,
		processor:      processor,
		lock:           cacheLocker{},
		interval:       interval,
		attemptTimeout: attemptTimeout,
		stopCh:         make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(s.interval)

	s.wg.Add(1)
	go s.loop()
	log.Infof("[Ledger Sweeper] Started (interval: %s)", s.interval)
}

// Stop halts the sweep loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[Ledger Sweeper] Stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Ledger Sweeper] Sweep loop stopping")
			return
		case <-s.ticker.C:
			if _, err := s.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrSweepActive) {
				log.Errorf("[Ledger Sweeper] Sweep error: %v", err)
			}
		}
	}
}

// RunOnce executes a single sweep: take the lease, replay due entries
// sequentially, release. A failure in one entry never aborts the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepSummary, error) {
	acquired, err := s.lock.Acquire(sweepLockKey, sweepLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSweepActive
	}
	defer func() {
		if err := s.lock.Release(sweepLockKey); err != nil {
			log.Warnf("[Ledger Sweeper] lease release failed: %v", err)
		}
	}()

	// A worker that died mid-replay leaves its claimed row in retrying;
	// return those to the pool before collecting due entries.
	if n, err := s.ledger.ReclaimStuck(time.Now().Add(-stuckRetryAge)); err != nil {
		log.Errorf("[Ledger Sweeper] stuck-entry reclaim failed: %v", err)
	} else if n > 0 {
		log.Warnf("[Ledger Sweeper] reclaimed %d stuck retrying entries", n)
	}

	entries, err := s.ledger.Due(time.Now(), sweepBatchSize)
	if err != nil {
		return nil, err
	}

	summary := &SweepSummary{Results: make([]RetryResult, 0, len(entries))}
	for i := range entries {
		entry := entries[i]
		claimed, err := s.ledger.Claim(entry.ID)
		if err != nil {
			log.Errorf("[Ledger Sweeper] claim failed for %s: %v", entry.WebhookID, err)
			continue
		}
		if !claimed {
			continue
		}
		entry.Status = models.LedgerStatusRetrying
		summary.Processed++

		result := s.replay(ctx, &entry)
		summary.Results = append(summary.Results, result)
		switch {
		case result.Error == "":
			summary.Successful++
		case result.NextRetryAt != nil:
			summary.Rescheduled++
		default:
			summary.Exhausted++
		}
	}
	return summary, nil
}

func (s *Sweeper) replay(ctx context.Context, entry *models.WebhookLedgerEntry) RetryResult {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	started := time.Now()
	res, err := s.processor.ProcessRaw(attemptCtx, entry.Gateway, []byte(entry.PayloadJSON))
	if err != nil {
		if ferr := s.ledger.Fail(entry, err); ferr != nil {
			log.Errorf("[Ledger Sweeper] failure bookkeeping for %s: %v", entry.WebhookID, ferr)
		}
		return RetryResult{
			WebhookID:   entry.WebhookID,
			Outcome:     "failed",
			Error:       err.Error(),
			NextRetryAt: entry.NextRetryAt,
		}
	}

	if err := s.ledger.CloseProcessed(entry, res.CustomOrderID, res, started); err != nil {
		log.Errorf("[Ledger Sweeper] close failed for %s: %v", entry.WebhookID, err)
	}
	return RetryResult{
		WebhookID: entry.WebhookID,
		Outcome:   string(res.Outcome),
	}
}
