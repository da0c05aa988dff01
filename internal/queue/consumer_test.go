package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkinCoach/internal/model"
	pkgerrors "SkinCoach/pkg/errors"
	"SkinCoach/storage/redis"
)

type memoryEventStore struct {
	mu     sync.Mutex
	events []*model.OnboardingEvent
	err    error
}

func (s *memoryEventStore) Save(ctx context.Context, event *model.OnboardingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func newTestConsumer(t *testing.T) (*AuditConsumer, *memoryEventStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := ri.NewClient(&ri.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redis.Use(client)

	store := &memoryEventStore{}
	return NewAuditConsumer(store, RedisMessageMarks()), store
}

func eventBody(t *testing.T, msg model.OnboardingEventMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func validMessage() model.OnboardingEventMessage {
	return model.OnboardingEventMessage{
		MessageID:      "msg-1",
		SessionID:      "sess-1",
		ProfileID:      "profile-1",
		Step:           model.StepSkinType,
		EventType:      model.EventStepCompleted,
		OccurredAt:     "2026-03-01T10:00:00Z",
		CompletedSteps: []model.StepID{model.StepPersonal, model.StepSkinType},
	}
}

func TestAuditConsumer_RecordsEvent(t *testing.T) {
	consumer, store := newTestConsumer(t)
	ctx := context.Background()

	require.NoError(t, consumer.Handle(ctx, eventBody(t, validMessage())))

	require.Len(t, store.events, 1)
	got := store.events[0]
	assert.Equal(t, "msg-1", got.MessageID)
	assert.Equal(t, "profile-1", got.ProfileID)
	assert.Equal(t, model.StepSkinType, got.Step)
	assert.Equal(t, "PERSONAL,SKIN_TYPE", got.CompletedSteps)
	assert.Equal(t, 2026, got.OccurredAt.Year())
}

func TestAuditConsumer_SkipsDuplicates(t *testing.T) {
	consumer, store := newTestConsumer(t)
	ctx := context.Background()
	body := eventBody(t, validMessage())

	require.NoError(t, consumer.Handle(ctx, body))
	err := consumer.Handle(ctx, body)

	assert.True(t, pkgerrors.IsSkipMessageError(err))
	assert.Len(t, store.events, 1)
}

func TestAuditConsumer_RejectsMalformed(t *testing.T) {
	consumer, store := newTestConsumer(t)
	ctx := context.Background()

	cases := map[string]func(m *model.OnboardingEventMessage){
		"missing message id": func(m *model.OnboardingEventMessage) { m.MessageID = "" },
		"missing profile":    func(m *model.OnboardingEventMessage) { m.ProfileID = "" },
		"unknown step":       func(m *model.OnboardingEventMessage) { m.Step = "PAYMENT" },
		"unknown event type": func(m *model.OnboardingEventMessage) { m.EventType = "clicked" },
		"bad timestamp":      func(m *model.OnboardingEventMessage) { m.OccurredAt = "yesterday" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := validMessage()
			mutate(&msg)
			err := consumer.Handle(ctx, eventBody(t, msg))
			assert.True(t, pkgerrors.IsSkipMessageError(err), "got %v", err)
		})
	}

	t.Run("not json", func(t *testing.T) {
		err := consumer.Handle(ctx, []byte("{"))
		assert.True(t, pkgerrors.IsSkipMessageError(err))
	})

	assert.Empty(t, store.events)
}

func TestAuditConsumer_StoreFailureAllowsRetry(t *testing.T) {
	consumer, store := newTestConsumer(t)
	ctx := context.Background()
	body := eventBody(t, validMessage())

	store.err = errors.New("connection refused")
	err := consumer.Handle(ctx, body)
	require.Error(t, err)
	assert.False(t, pkgerrors.IsSkipMessageError(err))

	store.err = nil
	require.NoError(t, consumer.Handle(ctx, body))
	assert.Len(t, store.events, 1)
}
