package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/funding-auth/internal/events"
	"github.com/spec-kit/funding-auth/internal/repository"
)

const auditWriteTimeout = 2 * time.Second

// StartAuditWorker persists every issuance event to the audit repository. Writes ignore the
// request's cancellation but are bounded by their own timeout.
func StartAuditWorker(dispatcher events.Dispatcher, repo repository.IssuanceRepository, logger *zap.Logger) {
	if dispatcher == nil || repo == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dispatcher.Subscribe(events.EventTokenIssued, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TokenIssuedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", event.Payload)
		}
		record := payload.Record

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
		defer cancel()
		if err := repo.Create(writeCtx, &record); err != nil {
			return err
		}
		logger.Debug("issuance audited",
			zap.String("event_id", event.ID),
			zap.String("account", record.Account),
			zap.String("class", string(record.Class)),
			zap.String("kind", string(record.Kind)),
		)
		return nil
	})
}
