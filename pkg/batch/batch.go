// Package batch resolves many records concurrently and reports one outcome per record
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const DefaultConcurrency = 8

// Resolver resolves a single record
type Resolver interface {
	Resolve(ctx context.Context, policy resolver.Policy, record models.IncomingRecord) (*models.ResolveResult, error)
}

type Status string

const (
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
	// StatusSkipped records were never submitted because the run was cancelled
	StatusSkipped Status = "skipped"
)

// RecordOutcome is the result for the record at Index of the input
type RecordOutcome struct {
	Index  int                   `json:"index"`
	Status Status                `json:"status"`
	Result *models.ResolveResult `json:"result,omitempty"`
	Err    error                 `json:"-"`
	Error  string                `json:"error,omitempty"`
	// DuplicateOf is the index of an identical earlier record whose outcome this one shares, or -1
	DuplicateOf int `json:"duplicate_of"`
}

// Report holds one outcome per input record, in input order
type Report struct {
	Outcomes   []RecordOutcome        `json:"outcomes"`
	ByOutcome  map[models.Outcome]int `json:"by_outcome"`
	Failed     int                    `json:"failed"`
	Skipped    int                    `json:"skipped"`
	Duplicates int                    `json:"duplicates"`
	Duration   time.Duration          `json:"duration"`
}

func (r *Report) String() string {
	return fmt.Sprintf("%d records: exact=%d accepted=%d created=%d pending=%d failed=%d skipped=%d duplicates=%d in %s",
		len(r.Outcomes),
		r.ByOutcome[models.OutcomeExactHit], r.ByOutcome[models.OutcomeAutoAccepted],
		r.ByOutcome[models.OutcomeCreatedNew], r.ByOutcome[models.OutcomePending],
		r.Failed, r.Skipped, r.Duplicates, r.Duration.Round(time.Millisecond))
}

type Config struct {
	Concurrency int
}

type Runner struct {
	resolver Resolver
	logger   ectologger.Logger
	config   Config
}

func NewRunner(resolver Resolver, logger ectologger.Logger, config Config) *Runner {
	if config.Concurrency < 1 {
		config.Concurrency = DefaultConcurrency
	}
	return &Runner{resolver: resolver, logger: logger, config: config}
}

// Run resolves records concurrently. A failing record never stops the batch. When ctx is
// cancelled no further records are submitted; records already in flight finish.
// Identical records are resolved once and share the outcome.
func (r *Runner) Run(ctx context.Context, policy resolver.Policy, records []models.IncomingRecord) *Report {
	ctx, span := tracing.StartSpan(ctx, "batch.Runner.Run")
	defer span.End()

	start := time.Now()
	outcomes := make([]RecordOutcome, len(records))
	duplicateOf := dedupe(records)

	inflight := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(r.config.Concurrency)

	for i, record := range records {
		outcomes[i] = RecordOutcome{Index: i, DuplicateOf: duplicateOf[i]}
		if duplicateOf[i] >= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			outcomes[i].Status, outcomes[i].Err = StatusSkipped, err
			continue
		}

		g.Go(func() error {
			metrics.BatchRecordsInFlight.Inc()
			defer metrics.BatchRecordsInFlight.Dec()

			result, err := r.resolver.Resolve(inflight, policy, record)
			if err != nil {
				outcomes[i].Status, outcomes[i].Err = StatusFailed, err
				return nil
			}
			outcomes[i].Status, outcomes[i].Result = StatusResolved, result
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Outcomes: outcomes, ByOutcome: make(map[models.Outcome]int)}
	for i := range outcomes {
		o := &outcomes[i]
		if o.DuplicateOf >= 0 {
			first := outcomes[o.DuplicateOf]
			o.Status, o.Result, o.Err = first.Status, first.Result, first.Err
			report.Duplicates++
		}
		if o.Err != nil {
			o.Error = o.Err.Error()
		}
		switch o.Status {
		case StatusResolved:
			report.ByOutcome[o.Result.Outcome]++
		case StatusFailed:
			report.Failed++
		case StatusSkipped:
			report.Skipped++
		}
		metrics.RecordBatchRecord(string(o.Status))
	}
	report.Duration = time.Since(start)

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"records":  len(records),
		"failed":   report.Failed,
		"skipped":  report.Skipped,
		"duration": report.Duration.String(),
	})
	if report.Failed > 0 {
		log.WithField("invalid_records", countCode(outcomes, domainerrors.CodeInvalidRecord)).Warn("Batch finished with failures")
	} else {
		log.Info("Batch finished")
	}
	return report
}

// dedupe maps each record to the index of its first identical predecessor, or -1
func dedupe(records []models.IncomingRecord) []int {
	first := make(map[string]int, len(records))
	out := make([]int, len(records))
	for i, record := range records {
		out[i] = -1
		fp, err := fingerprint.Record(record)
		if err != nil {
			continue
		}
		if j, ok := first[fp]; ok {
			out[i] = j
			continue
		}
		first[fp] = i
	}
	return out
}

func countCode(outcomes []RecordOutcome, code domainerrors.Code) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == StatusFailed && o.DuplicateOf < 0 && domainerrors.HasCode(o.Err, code) {
			n++
		}
	}
	return n
}

// ErrPartitionLocked is returned when another run holds the partition
var ErrPartitionLocked = errors.New("partition is locked by another run")

// PartitionLocker grants exclusive, expiring ownership of a partition key
type PartitionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
