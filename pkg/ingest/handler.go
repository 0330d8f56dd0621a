// Package ingest resolves records arriving on the ingestion topic
package ingest

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Resolver interface {
	Resolve(ctx context.Context, policy resolver.Policy, record models.IncomingRecord) (*models.ResolveResult, error)
}

// NewHandler returns a consumer handler that resolves each message under policy.
// Errors are returned unchanged so the consumer can tell rejected records from
// failures worth redelivering.
func NewHandler(r Resolver, policy resolver.Policy, logger ectologger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		ctx, span := tracing.StartSpan(ctx, "ingest.Handle")
		defer span.End()

		if msg.Record == nil {
			return errors.New("message has no parsed record")
		}

		result, err := r.Resolve(ctx, policy, *msg.Record)
		if err != nil {
			return err
		}

		logger.WithContext(ctx).WithFields(map[string]any{
			"offset":           msg.Offset,
			"entity_type":      msg.Record.EntityType,
			"source":           msg.Record.Source,
			"outcome":          result.Outcome,
			"entity_id":        result.EntityID,
			"pending_match_id": result.PendingMatchID,
		}).Debug("Resolved incoming record")
		return nil
	}
}
