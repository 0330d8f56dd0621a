package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
)

// DefaultPartitionTTL bounds how long a crashed run can hold a partition
const DefaultPartitionTTL = 30 * time.Minute

// Partition is a (source, year) slice of a backfill. Year 0 holds records with no era.
type Partition struct {
	Source string `json:"source"`
	Year   int    `json:"year"`
}

func (p Partition) Key() string {
	return fmt.Sprintf("fern:backfill:%s:%d", p.Source, p.Year)
}

// Split groups records by partition, keeping the order partitions and records first appear in
func Split(records []models.IncomingRecord) ([]Partition, map[Partition][]models.IncomingRecord) {
	var order []Partition
	groups := make(map[Partition][]models.IncomingRecord)
	for _, record := range records {
		p := Partition{Source: record.Source, Year: record.Era.StartYear}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], record)
	}
	return order, groups
}

// RunPartition runs one partition while holding its lock, so the same partition is never
// backfilled by two runs at once. ErrPartitionLocked means another run owns it.
func (r *Runner) RunPartition(ctx context.Context, locker PartitionLocker, policy resolver.Policy, partition Partition, records []models.IncomingRecord) (*Report, error) {
	release, err := locker.Acquire(ctx, partition.Key(), DefaultPartitionTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("partition", partition.Key()).Warn("Failed to release partition lock")
		}
	}()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"source":  partition.Source,
		"year":    partition.Year,
		"records": len(records),
	}).Info("Running backfill partition")

	return r.Run(ctx, policy, records), nil
}
