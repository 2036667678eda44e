package activities

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/session"
)

// Number of history messages handed to the planner. The full history stays
// in the session; the planner only needs recent context.
const planningHistoryDepth = 10

// FetchSessionContext resolves the session for a research call, creating
// one when the id is empty or stale, and returns the recent history.
func (a *Activities) FetchSessionContext(ctx context.Context, in FetchSessionContextInput) (FetchSessionContextResult, error) {
	if a.sessions == nil {
		return FetchSessionContextResult{SessionID: in.SessionID}, nil
	}

	s, err := a.sessions.GetOrCreate(ctx, in.SessionID)
	if err != nil {
		return FetchSessionContextResult{}, fmt.Errorf("resolve session: %w", err)
	}
	return FetchSessionContextResult{
		SessionID: s.ID,
		History:   s.RecentHistory(planningHistoryDepth),
	}, nil
}

// PersistTurn appends the finished turn to the durable log and records the
// exchange in the session history. Callers treat failure as non-fatal; the
// answer has already been produced.
func (a *Activities) PersistTurn(ctx context.Context, in PersistTurnInput) (PersistTurnResult, error) {
	var result PersistTurnResult

	if a.store != nil {
		id, err := a.store.AppendTurn(ctx, in.SessionID, in.Turn)
		if err != nil {
			return result, fmt.Errorf("append turn: %w", err)
		}
		result.TurnID = id
	}

	if a.sessions != nil && in.SessionID != "" {
		now := time.Now()
		msgs := []session.Message{
			{Role: "user", Content: in.Turn.Question, Timestamp: now},
			{Role: "assistant", Content: in.Turn.Answer.Text, Timestamp: now},
		}
		for _, msg := range msgs {
			if err := a.sessions.AppendMessage(ctx, in.SessionID, msg); err != nil {
				a.logger.Warn("Failed to record session history",
					zap.String("session_id", in.SessionID),
					zap.Error(err),
				)
				return result, nil
			}
		}
		if err := a.sessions.IncrementTurnCount(ctx, in.SessionID); err != nil {
			a.logger.Warn("Failed to bump turn count",
				zap.String("session_id", in.SessionID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}
