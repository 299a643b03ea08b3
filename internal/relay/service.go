package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
	pkgerrors "github.com/sergeJAVA/contractor-service/pkg/errors"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/metrics"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
)

const (
	defaultBatchSize      = 10
	defaultPollInterval   = 5 * time.Second
	defaultPublishTimeout = 10 * time.Second
	maxBackoff            = 30 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Publisher hands a message to the broker and returns once the broker
// confirmed it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, messageID string) error
	Ping(ctx context.Context) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxStore interface {
	ClaimPendingBatch(ctx context.Context, limit int, workerID string) ([]models.OutboxMessage, error)
	RenewClaim(ctx context.Context, id uuid.UUID, token string) error
	MarkSent(ctx context.Context, id uuid.UUID, token string) error
	MarkFailed(ctx context.Context, id uuid.UUID, token string, cause error) error
	ReleaseClaim(ctx context.Context, id uuid.UUID, token string) error
}

type payloadDecoder interface {
	Decode(payload []byte) (*models.Contractor, error)
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         pinger
	Store      outboxStore
	Decoder    payloadDecoder
	Publisher  Publisher
	Metrics    *metrics.RelayMetrics
	WorkerID   string
	RoutingKey string
}

// Service drains PENDING outbox records into the broker. Several instances
// may run against the same table; row claims keep them from publishing the
// same record concurrently.
type Service struct {
	logg           *logger.Logger
	db             pinger
	store          outboxStore
	decoder        payloadDecoder
	publisher      Publisher
	metrics        *metrics.RelayMetrics
	workerID       string
	routingKey     string
	batchSize      int
	pollInterval   time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

// CycleResult summarizes one relay cycle.
type CycleResult struct {
	Claimed  int
	Sent     int
	Failed   int
	Retained int
	Skipped  int
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeRetained
	outcomeSkipped
)

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Store == nil {
		return nil, errors.New("outbox store is required")
	}
	if params.Decoder == nil {
		return nil, errors.New("payload decoder is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if params.WorkerID == "" {
		return nil, errors.New("worker id is required")
	}
	if params.RoutingKey == "" {
		return nil, errors.New("routing key is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	interval := params.Config.PollInterval()
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := params.Config.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &Service{
		logg:           params.Logger,
		db:             params.DB,
		store:          params.Store,
		decoder:        params.Decoder,
		publisher:      params.Publisher,
		metrics:        params.Metrics,
		workerID:       params.WorkerID,
		routingKey:     params.RoutingKey,
		batchSize:      batch,
		pollInterval:   interval,
		publishTimeout: timeout,
		now:            time.Now,
	}, nil
}

// ensureReadiness requires the database. A missing broker is only logged:
// records then fail and wait for replay, the write path is not affected.
func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.publisher.Ping(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "broker not ready at relay start")
	}
	return nil
}

// Run polls until ctx is canceled. Cancellation is honored between cycles;
// a cycle that already claimed records finishes them first.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = s.logg.WithWorkerID(ctx, s.workerID)

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_size":       s.batchSize,
		"poll_interval_ms": s.pollInterval.Milliseconds(),
	}), "outbox relay started")

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox relay context canceled")
			return ctx.Err()
		default:
		}

		wait := s.pollInterval
		result, err := s.RunCycle(context.WithoutCancel(ctx))
		if err != nil {
			s.logg.Error(ctx, "outbox relay cycle error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = withJitter(backoff)
		} else {
			backoff = s.pollInterval
			if result.Claimed > 0 {
				s.logg.Info(s.logg.WithFields(ctx, map[string]any{
					"claimed":  result.Claimed,
					"sent":     result.Sent,
					"failed":   result.Failed,
					"retained": result.Retained,
					"skipped":  result.Skipped,
				}), "outbox relay cycle completed")
			}
		}

		if err := s.sleep(ctx, wait); err != nil {
			s.logg.Info(ctx, "outbox relay context canceled")
			return err
		}
	}
}

// RunCycle claims one batch of PENDING records and relays each of them. A
// failing record never stops its siblings; only a failed claim is returned
// as an error.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	s.metrics.IncCycle()

	records, err := s.store.ClaimPendingBatch(ctx, s.batchSize, s.workerID)
	if err != nil {
		s.metrics.IncClaimError()
		return CycleResult{}, fmt.Errorf("claim pending batch: %w", err)
	}
	result := CycleResult{Claimed: len(records)}
	if len(records) == 0 {
		s.metrics.SetLag(0)
		return result, nil
	}
	s.metrics.AddClaimed(len(records))
	s.metrics.SetLag(s.now().Sub(records[0].CreatedAt))

	for _, record := range records {
		switch s.relay(ctx, record) {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
		case outcomeSkipped:
			result.Skipped++
		default:
			result.Retained++
		}
	}
	return result, nil
}

func (s *Service) relay(ctx context.Context, record models.OutboxMessage) outcome {
	logCtx := s.logg.WithFields(ctx, s.recordFields(record))

	contractor, err := s.decoder.Decode([]byte(record.Payload))
	if err != nil {
		return s.fail(logCtx, record, enums.OutboxFailureSerialization, err)
	}
	logCtx = s.logg.WithField(logCtx, "contractor_id", contractor.ID)

	// earlier records of the batch may have used up most of the claim TTL
	if err := s.store.RenewClaim(ctx, record.MessageID, claimToken(record)); err != nil {
		if errors.Is(err, outbox.ErrClaimLost) {
			return s.claimLost(logCtx)
		}
		s.metrics.IncMarkError()
		s.logg.Error(logCtx, "outbox claim renewal failed", err)
		s.release(logCtx, record)
		return outcomeRetained
	}

	if err := s.publish(ctx, record); err != nil {
		return s.fail(logCtx, record, enums.OutboxFailurePublish, err)
	}

	if err := s.store.MarkSent(ctx, record.MessageID, claimToken(record)); err != nil {
		if errors.Is(err, outbox.ErrClaimLost) {
			return s.claimLost(logCtx)
		}
		// the broker has the message; leaving the record PENDING means a
		// duplicate delivery with the same message id, never a lost one
		s.metrics.IncMarkError()
		s.logg.Error(logCtx, "outbox mark sent failed", err)
		s.release(logCtx, record)
		return outcomeRetained
	}
	s.metrics.IncSent()
	s.logg.Debug(logCtx, "outbox message sent")
	return outcomeSent
}

func (s *Service) claimLost(ctx context.Context) outcome {
	s.metrics.IncClaimLost()
	s.logg.Warn(ctx, "outbox claim taken over by another worker, skipping record")
	return outcomeSkipped
}

func (s *Service) publish(ctx context.Context, record models.OutboxMessage) error {
	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	start := time.Now()
	err := s.publisher.Publish(publishCtx, s.routingKey, []byte(record.Payload), record.MessageID.String())
	s.metrics.ObservePublish(time.Since(start))
	if err != nil {
		return &PublishError{MessageID: record.MessageID, Err: err}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, record models.OutboxMessage, reason enums.OutboxFailureReason, cause error) outcome {
	dump := pkgerrors.Dump(cause)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"failure_reason": string(reason),
		"error_op":       dump.Op,
		"error_chain":    dump.Chain,
	})
	s.logg.Error(ctx, "outbox message failed", cause)

	if err := s.store.MarkFailed(ctx, record.MessageID, claimToken(record), cause); err != nil {
		if errors.Is(err, outbox.ErrClaimLost) {
			return s.claimLost(ctx)
		}
		s.metrics.IncMarkError()
		s.logg.Error(ctx, "outbox mark failed failed", err)
		s.release(ctx, record)
		return outcomeRetained
	}
	s.metrics.IncFailed(string(reason))
	return outcomeFailed
}

func (s *Service) release(ctx context.Context, record models.OutboxMessage) {
	if err := s.store.ReleaseClaim(ctx, record.MessageID, claimToken(record)); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox claim release failed, waiting for claim ttl")
	}
}

func claimToken(record models.OutboxMessage) string {
	if record.ClaimToken == nil {
		return ""
	}
	return *record.ClaimToken
}

func (s *Service) recordFields(record models.OutboxMessage) map[string]any {
	fields := map[string]any{
		"message_id":    record.MessageID.String(),
		"aggregate_id":  record.AggregateID,
		"attempt_count": record.AttemptCount,
		"routing_key":   s.routingKey,
		"created_at":    record.CreatedAt.Format(time.RFC3339Nano),
	}
	if record.LastError != nil {
		fields["last_error"] = *record.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	jitterMu.Unlock()
	return d + jitter
}
