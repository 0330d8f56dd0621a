// Package service wires the resolution core over a storage backend
package service

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/alias"
	"github.com/Ramsey-B/fern/internal/repositories/canonicalentity"
	"github.com/Ramsey-B/fern/internal/repositories/pendingmatch"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/ledger"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/store/memory"
)

// EntityStore is everything the core needs from canonical entity storage
type EntityStore interface {
	resolver.EntityRepository
	matching.CandidateStore
}

// Stores is one storage backend
type Stores struct {
	Entities EntityStore
	Aliases  ledger.AliasRepository
	Pending  resolver.PendingRepository
	Tx       resolver.Transactor
}

// PostgresStores backs the core with the SQL repositories
func PostgresStores(db database.DB, logger ectologger.Logger) Stores {
	return Stores{
		Entities: canonicalentity.NewRepository(db, logger),
		Aliases:  alias.NewRepository(db, logger),
		Pending:  pendingmatch.NewRepository(db, logger),
		Tx:       database.NewTransactor(db, logger),
	}
}

// MemoryStores backs the core with an in-process store
func MemoryStores(store *memory.Store) Stores {
	return Stores{
		Entities: store.Entities(),
		Aliases:  store.Aliases(),
		Pending:  store.PendingMatches(),
		Tx:       store,
	}
}

type Options struct {
	Blocking         matching.BlockingConfig
	BatchConcurrency int
}

// Core is the resolution core: ledger, resolver, review queue and batch runner
type Core struct {
	Ledger   *ledger.Service
	Resolver *resolver.Resolver
	Review   *review.Service
	Runner   *batch.Runner
}

func NewCore(stores Stores, opts Options, logger ectologger.Logger, observers ...events.Observer) *Core {
	aliases := ledger.NewService(stores.Aliases, stores.Tx, logger)
	generator := matching.NewGenerator(stores.Entities, aliases, logger, opts.Blocking)
	res := resolver.New(stores.Entities, stores.Pending, aliases, generator, stores.Tx, logger, observers...)

	return &Core{
		Ledger:   aliases,
		Resolver: res,
		Review:   review.NewService(stores.Pending, stores.Entities, res, stores.Tx, logger, observers...),
		Runner:   batch.NewRunner(res, logger, batch.Config{Concurrency: opts.BatchConcurrency}),
	}
}
