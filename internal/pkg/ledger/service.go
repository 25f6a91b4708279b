package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/app/repository"
)

const (
	// DefaultMaxRetries is the fixed retry ceiling per ledger entry.
	DefaultMaxRetries = 3
	// DefaultBaseDelay seeds the exponential backoff schedule.
	DefaultBaseDelay = time.Minute
)

// Service owns the webhook audit ledger: one row per inbound call, with the
// lifecycle pending -> processing -> processed | failed, and failed entries
// rescheduled on doubling backoff until the ceiling.
type Service struct {
	entries    repository.LedgerRepository
	baseDelay  time.Duration
	maxRetries int
}

// NewService creates the ledger service with default retry policy.
func NewService(entries repository.LedgerRepository) *Service {
	return &Service{
		entries:    entries,
		baseDelay:  DefaultBaseDelay,
		maxRetries: DefaultMaxRetries,
	}
}

// WithRetryPolicy overrides the backoff base delay and retry ceiling.
func (s *Service) WithRetryPolicy(baseDelay time.Duration, maxRetries int) *Service {
	if baseDelay > 0 {
		s.baseDelay = baseDelay
	}
	if maxRetries >= 0 {
		s.maxRetries = maxRetries
	}
	return s
}

// MaxRetries returns the configured retry ceiling.
func (s *Service) MaxRetries() int {
	return s.maxRetries
}

// Record appends a pending entry holding the verbatim payload, headers and
// source IP of one inbound webhook call.
func (s *Service) Record(gateway string, payload []byte, headers map[string]string, sourceIP string) (*models.WebhookLedgerEntry, error) {
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		headersJSON = []byte("{}")
	}

	entry := &models.WebhookLedgerEntry{
		WebhookID:   uuid.NewString(),
		Gateway:     gateway,
		PayloadJSON: string(payload),
		HeadersJSON: string(headersJSON),
		SourceIP:    sourceIP,
		Status:      models.LedgerStatusPending,
	}
	if err := s.entries.Create(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// BeginProcessing marks the entry the moment normalization starts.
func (s *Service) BeginProcessing(webhookID string) error {
	return s.entries.MarkProcessing(webhookID)
}

// CloseProcessed finalizes an entry whose reconciliation returned any
// non-exceptional result, order_not_found included.
func (s *Service) CloseProcessed(entry *models.WebhookLedgerEntry, orderRef string, response any, started time.Time) error {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		responseJSON = []byte("{}")
	}
	return s.entries.MarkProcessed(entry.WebhookID, orderRef, string(responseJSON), time.Since(started).Milliseconds())
}

// Fail records a processing failure and schedules the next retry on doubling
// backoff. The retry count only advances when the failed attempt itself was
// a retry; the initial delivery failure schedules the first retry at the
// base delay. Entries past the ceiling stay failed with no retry scheduled
// and wait for an operator.
func (s *Service) Fail(entry *models.WebhookLedgerEntry, procErr error) error {
	reason := ""
	if procErr != nil {
		reason = procErr.Error()
	}

	retryCount := entry.RetryCount
	if entry.Status == models.LedgerStatusRetrying {
		retryCount++
	}

	var nextRetryAt *time.Time
	if retryCount < s.maxRetries {
		at := time.Now().Add(s.RetryDelay(retryCount))
		nextRetryAt = &at
	}

	entry.Status = models.LedgerStatusFailed
	entry.RetryCount = retryCount
	entry.NextRetryAt = nextRetryAt
	entry.FailureReason = reason
	return s.entries.MarkFailed(entry.WebhookID, reason, retryCount, nextRetryAt)
}

// RetryDelay computes base * 2^retryCount.
func (s *Service) RetryDelay(retryCount int) time.Duration {
	delay := s.baseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
	}
	return delay
}

// Due returns failed entries whose next retry is ripe.
func (s *Service) Due(now time.Time, limit int) ([]models.WebhookLedgerEntry, error) {
	return s.entries.DueForRetry(now, s.maxRetries, limit)
}

// Claim atomically flips one failed entry to retrying; only one caller wins.
func (s *Service) Claim(id uint) (bool, error) {
	return s.entries.ClaimForRetry(id)
}

// ReclaimStuck returns retrying entries abandoned by a crashed worker to the
// failed pool so the next sweep can pick them up again.
func (s *Service) ReclaimStuck(staleBefore time.Time) (int64, error) {
	return s.entries.ReclaimStuck(staleBefore)
}

// Get fetches one entry by its public webhook id.
func (s *Service) Get(webhookID string) (*models.WebhookLedgerEntry, bool, error) {
	return s.entries.GetByWebhookID(webhookID)
}

// List exposes filtered ledger entries for operator tooling.
func (s *Service) List(filter repository.LedgerFilter, offset, limit int) ([]models.WebhookLedgerEntry, int64, error) {
	return s.entries.List(filter, offset, limit)
}
