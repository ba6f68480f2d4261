package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/funding-auth/internal/domain"
	"github.com/spec-kit/funding-auth/internal/events"
)

type recordingRepo struct {
	records []domain.IssuanceRecord
	ctxErrs []error
}

func (r *recordingRepo) Create(ctx context.Context, record *domain.IssuanceRecord) error {
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	record.ID = "rec-1"
	r.records = append(r.records, *record)
	return nil
}

func (r *recordingRepo) ListByAccount(context.Context, string, int) ([]domain.IssuanceRecord, error) {
	return r.records, nil
}

func TestAuditWorker_PersistsIssuance(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	repo := &recordingRepo{}
	StartAuditWorker(dispatcher, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	issuedAt := time.Unix(1700000000, 0).UTC()
	err := dispatcher.Publish(ctx, events.Event{
		Type:    events.EventTokenIssued,
		Account: "alice",
		Payload: events.TokenIssuedPayload{Record: domain.IssuanceRecord{
			Class:     domain.TokenClassAdmin,
			Kind:      domain.TokenKindCsrf,
			Account:   "alice",
			Bound:     true,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt.Add(time.Hour),
		}},
	})
	require.NoError(t, err)

	require.Len(t, repo.records, 1)
	assert.Equal(t, "alice", repo.records[0].Account)
	assert.Equal(t, domain.TokenKindCsrf, repo.records[0].Kind)
	assert.NoError(t, repo.ctxErrs[0], "write must not inherit the caller's cancellation")
}

func TestAuditWorker_RejectsForeignPayload(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	repo := &recordingRepo{}
	StartAuditWorker(dispatcher, repo, nil)

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventTokenIssued, Payload: "nope"})
	assert.Error(t, err)
	assert.Empty(t, repo.records)
}

func TestAuditWorker_NilCollaborators(t *testing.T) {
	StartAuditWorker(nil, &recordingRepo{}, nil)

	dispatcher := events.NewInMemoryDispatcher()
	StartAuditWorker(dispatcher, nil, nil)
	assert.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventTokenIssued}))
}
