package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/sergeJAVA/contractor-service/pkg/enums"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/metrics"
)

const (
	StaleClaimsJobName = "outbox-stale-claims"
	BacklogJobName     = "outbox-backlog"
)

type staleClaimReleaser interface {
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
}

type backlogReader interface {
	CountByStatus(ctx context.Context) (map[enums.OutboxStatus]int64, error)
	OldestPendingAge(ctx context.Context) (time.Duration, error)
}

type OutboxJobParams struct {
	Logger   *logger.Logger
	Metrics  *metrics.BacklogMetrics
	ClaimTTL time.Duration
}

// NewStaleClaimsJob returns the job that makes records claimed by a dead
// relay worker claimable again.
func NewStaleClaimsJob(repo staleClaimReleaser, params OutboxJobParams) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ClaimTTL <= 0 {
		return nil, fmt.Errorf("claim ttl must be positive")
	}
	return &staleClaimsJob{repo: repo, logg: params.Logger, metrics: params.Metrics, claimTTL: params.ClaimTTL}, nil
}

type staleClaimsJob struct {
	repo     staleClaimReleaser
	logg     *logger.Logger
	metrics  *metrics.BacklogMetrics
	claimTTL time.Duration
}

func (j *staleClaimsJob) Name() string { return StaleClaimsJobName }

func (j *staleClaimsJob) Run(ctx context.Context) error {
	released, err := j.repo.ReleaseStaleClaims(ctx, j.claimTTL)
	if err != nil {
		return err
	}
	j.metrics.AddStaleReleased(released)
	if released > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"released":  released,
			"claim_ttl": j.claimTTL.String(),
		}), "released stale outbox claims")
	}
	return nil
}

// NewBacklogJob returns the job that exports outbox backlog gauges.
func NewBacklogJob(repo backlogReader, params OutboxJobParams) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &backlogJob{repo: repo, logg: params.Logger, metrics: params.Metrics}, nil
}

type backlogJob struct {
	repo    backlogReader
	logg    *logger.Logger
	metrics *metrics.BacklogMetrics
}

func (j *backlogJob) Name() string { return BacklogJobName }

func (j *backlogJob) Run(ctx context.Context) error {
	var errs error

	counts, err := j.repo.CountByStatus(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("count by status: %w", err))
	}
	for status, n := range counts {
		j.metrics.SetRecords(string(status), n)
	}

	age, err := j.repo.OldestPendingAge(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("oldest pending age: %w", err))
	} else {
		j.metrics.SetOldestPendingAge(age)
	}

	if errs == nil {
		j.logg.Debug(j.logg.WithFields(ctx, map[string]any{
			"pending":            counts[enums.OutboxStatusPending],
			"failed":             counts[enums.OutboxStatusFailed],
			"oldest_pending_sec": age.Seconds(),
		}), "outbox backlog sampled")
	}
	return errs
}
