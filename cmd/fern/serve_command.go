package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/ingest"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/routes/alias"
	"github.com/Ramsey-B/fern/pkg/routes/entity"
	graphroutes "github.com/Ramsey-B/fern/pkg/routes/graph"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/pendingmatch"
	"github.com/Ramsey-B/fern/pkg/routes/resolve"
	"github.com/Ramsey-B/fern/pkg/server"
	"github.com/Ramsey-B/fern/pkg/service"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resolution API and, when enabled, the ingestion consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply database migrations before serving")

	return cmd
}

func runServe(ctx context.Context, cc *commandContext, migrate bool) error {
	cfg, logger := cc.config, cc.logger

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	checker := health.NewChecker(cfg.Version)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	var (
		db        database.DB
		graphDB   *graph.Client
		producer  *kafka.Producer
		consumer  *kafka.Consumer
		core      *service.Core
		observers []events.Observer
	)

	boot.AddDependency(&startup.Dependency{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			conn, err := cc.connect(ctx, migrate)
			if err != nil {
				return err
			}
			db = conn
			checker.AddCheck("postgres", func(ctx context.Context) error {
				return db.SQL().PingContext(ctx)
			})
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})

	coreRequires := []string{"postgres"}

	if cfg.GraphEnabled {
		coreRequires = append(coreRequires, "graph")
		boot.AddDependency(&startup.Dependency{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				graphDB = client
				observers = append(observers, graph.NewProjector(client, logger))
				checker.AddCheck("graph", client.VerifyConnectivity)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if graphDB == nil {
					return nil
				}
				return graphDB.Close(ctx)
			},
		})
	}

	if cfg.KafkaProducerEnabled {
		coreRequires = append(coreRequires, "producer")
		boot.AddDependency(&startup.Dependency{
			Name: "producer",
			StartFunc: func(ctx context.Context) error {
				producer = kafka.NewProducer(cfg.Producer(), logger)
				observers = append(observers, events.NewEmitter(producer, logger))
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if producer == nil {
					return nil
				}
				return producer.Close()
			},
		})
	}

	boot.AddDependency(&startup.Dependency{
		Name:     "core",
		Requires: coreRequires,
		StartFunc: func(ctx context.Context) error {
			core = service.NewCore(service.PostgresStores(db, logger), service.Options{
				Blocking:         cfg.Blocking(),
				BatchConcurrency: cfg.BatchConcurrency,
			}, logger, observers...)
			return nil
		},
	})

	var api *server.Server
	boot.AddDependency(&startup.Dependency{
		Name:     "http",
		Requires: []string{"core"},
		StartFunc: func(ctx context.Context) error {
			handlers := server.Handlers{
				Health:       checker,
				Resolve:      resolve.NewHandler(core.Resolver, core.Runner, cfg.Policy()),
				PendingMatch: pendingmatch.NewHandler(core.Review),
				Alias:        alias.NewHandler(core.Resolver),
				Entity:       entity.NewHandler(core.Resolver),
				Graph:        graphroutes.NewHandler(nil),
			}
			if graphDB != nil {
				handlers.Graph = graphroutes.NewHandler(graph.NewLineageService(graphDB, logger))
			}
			api = server.New(server.Config{
				AppName:           cfg.AppName,
				Port:              cfg.Port,
				ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
				AllowOrigins:      cfg.AllowOrigins,
				AllowMethods:      cfg.AllowMethods,
			}, handlers, logger)
			return api.Start(ctx)
		},
		StopFunc: func(ctx context.Context) error {
			if api == nil {
				return nil
			}
			return api.Stop(ctx)
		},
	})

	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(&startup.Dependency{
			Name:     "consumer",
			Requires: []string{"core"},
			StartFunc: func(ctx context.Context) error {
				consumer = kafka.NewConsumer(cfg.Consumer(), logger, ingest.NewHandler(core.Resolver, cfg.Policy(), logger))
				checker.AddCheck("consumer", func(context.Context) error {
					if !consumer.Health() {
						return errors.New("consumer is not running")
					}
					return nil
				})
				return consumer.Start(ctx)
			},
			StopFunc: func(ctx context.Context) error {
				if consumer == nil {
					return nil
				}
				return consumer.Stop()
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = boot.Stop(stopCtx)
		return err
	}

	logger.WithField("port", cfg.Port).Info("Fern is serving")
	<-ctx.Done()
	logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return boot.Stop(stopCtx)
}
