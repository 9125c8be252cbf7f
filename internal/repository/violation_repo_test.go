package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorexam/internal/apperrors"
	"proctorexam/internal/attempt"
	"proctorexam/internal/database/dbtest"
	"proctorexam/internal/models"
)

func TestViolationRepository(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	def := seedTest(t, db, "test-1")
	require.NoError(t, NewAttemptRepository(db).Create(ctx, attempt.New("a1", def, "student-1", 1, 1, baseTime)))

	repo := NewViolationRepository(db)

	events := []*models.ViolationEvent{
		{ID: "v1", AttemptID: "a1", EventID: "e1", Kind: models.ViolationTabSwitch, OccurredAt: baseTime.Add(time.Minute)},
		{ID: "v2", AttemptID: "a1", EventID: "e2", Kind: models.ViolationTabSwitch, OccurredAt: baseTime.Add(2 * time.Minute)},
		{
			ID:         "v3",
			AttemptID:  "a1",
			EventID:    "e3",
			Kind:       models.ViolationMultiFace,
			OccurredAt: baseTime.Add(30 * time.Second),
			Payload:    json.RawMessage(`{"faces":2}`),
		},
	}
	for _, ev := range events {
		ev.RecordedAt = baseTime.Add(3 * time.Minute)
		require.NoError(t, repo.Insert(ctx, ev))
	}

	t.Run("duplicate event id", func(t *testing.T) {
		dup := *events[0]
		dup.ID = "v4"
		err := repo.Insert(ctx, &dup)
		assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(ctx, "a1", "e3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.ViolationMultiFace, got.Kind)
		assert.JSONEq(t, `{"faces":2}`, string(got.Payload))

		missing, err := repo.Get(ctx, "a1", "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("count by kind", func(t *testing.T) {
		n, err := repo.CountByKind(ctx, "a1", models.ViolationTabSwitch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = repo.CountByKind(ctx, "a1", models.ViolationNoFace)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("list in occurrence order", func(t *testing.T) {
		list, err := repo.ListByAttempt(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "e3", list[0].EventID)
		assert.Equal(t, "e1", list[1].EventID)
		assert.Equal(t, "e2", list[2].EventID)
		assert.Nil(t, list[1].Payload)
	})
}
