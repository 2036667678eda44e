package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreFromDB(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock
}

func sampleTurn() models.ResearchTurn {
	return models.ResearchTurn{
		Question: "capital of France?",
		Strategy: models.Strategy{
			Mode:  models.ModeSingle,
			Steps: []models.StepPlan{{Index: 0, DraftQuery: "capital of France"}},
		},
		Answer: models.Answer{
			Text:       "Paris.",
			Confidence: models.ConfidenceHigh,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestAppendTurn(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO research_turns").
		WithArgs(sqlmock.AnyArg(), "sess-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.AppendTurn(context.Background(), "sess-1", sampleTurn())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTurns(t *testing.T) {
	store, mock := newMockStore(t)

	good, err := json.Marshal(sampleTurn())
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"turn"}).
		AddRow(string(good)).
		AddRow("{corrupt json").
		AddRow(string(good))
	mock.ExpectQuery("SELECT turn FROM research_turns").
		WithArgs("sess-1").
		WillReturnRows(rows)

	turns, err := store.GetTurns(context.Background(), "sess-1")
	require.NoError(t, err)
	// The corrupt row is skipped, not fatal.
	require.Len(t, turns, 2)
	assert.Equal(t, "Paris.", turns[0].Answer.Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTurnsQueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT turn FROM research_turns").
		WithArgs("sess-1").
		WillReturnError(assert.AnError)

	_, err := store.GetTurns(context.Background(), "sess-1")
	assert.Error(t, err)
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	_, err := NewStore("mongodb", "dsn", zap.NewNop())
	assert.Error(t, err)
}
