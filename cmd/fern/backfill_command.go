package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/service"
	"github.com/Ramsey-B/fern/pkg/store/memory"
)

type backfillOptions struct {
	file                 string
	concurrency          int
	partitionConcurrency int
	dryRun               bool
}

func newBackfillCommand(ctx *commandContext) *cobra.Command {
	var opts backfillOptions

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Resolve a JSONL file of records, one partition per source and year",
		Long: `Resolve a JSONL file of incoming records.

Records are split into (source, year) partitions. Each partition runs under a lock
so two backfills never resolve the same partition at once; partitions held by
another run are reported as skipped. With --dry-run the records are resolved
against an empty in-memory ledger and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSONL file of records, or - for stdin")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Records resolved in parallel per partition (default BATCH_CONCURRENCY)")
	cmd.Flags().IntVar(&opts.partitionConcurrency, "partition-concurrency", 1, "Partitions run in parallel")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Resolve against an in-memory ledger without writing")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runBackfill(ctx context.Context, cc *commandContext, opts backfillOptions, out io.Writer) error {
	cfg, logger := cc.config, cc.logger

	records, err := loadRecords(opts.file)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No records to backfill")
		return nil
	}

	concurrency := opts.concurrency
	if concurrency <= 0 {
		concurrency = cfg.BatchConcurrency
	}
	coreOpts := service.Options{Blocking: cfg.Blocking(), BatchConcurrency: concurrency}

	var (
		stores service.Stores
		locker batch.PartitionLocker = batch.NewLocalLocker()
	)
	if opts.dryRun {
		stores = service.MemoryStores(memory.New())
	} else {
		db, err := cc.connect(ctx, false)
		if err != nil {
			return err
		}
		defer db.Close()
		stores = service.PostgresStores(db, logger)

		if cfg.RedisEnabled {
			client, err := redis.NewClient(ctx, cfg.Redis(), logger)
			if err != nil {
				return err
			}
			defer client.Close()
			locker = redis.NewPartitionLocks(redis.NewLocker(client, cfg.RedisLockPrefix))
		}
	}

	core := service.NewCore(stores, coreOpts, logger)
	policy := cfg.Policy()
	order, groups := batch.Split(records)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.partitionConcurrency, 1))

	for _, partition := range order {
		g.Go(func() error {
			report, err := core.Runner.RunPartition(gctx, locker, policy, partition, groups[partition])

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, batch.ErrPartitionLocked):
				fmt.Fprintf(out, "%s: skipped, locked by another run\n", partition.Key())
				return nil
			case err != nil:
				return fmt.Errorf("partition %s: %w", partition.Key(), err)
			}
			fmt.Fprintf(out, "%s: %s\n", partition.Key(), report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"records":    len(records),
		"partitions": len(order),
		"dry_run":    opts.dryRun,
	}).Info("Backfill finished")
	return nil
}

func loadRecords(path string) ([]models.IncomingRecord, error) {
	if path == "-" {
		return readRecords(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
