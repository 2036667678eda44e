package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/metrics"
	"github.com/sounderhq/sounder/internal/models"
)

// Store is the append-only research-turn log. Turns are stored as opaque
// JSON; the store makes no transactional guarantees beyond single-row
// inserts.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const turnSchema = `
CREATE TABLE IF NOT EXISTS research_turns (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    turn       TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_research_turns_session
    ON research_turns (session_id, created_at);
`

// NewStore opens the turn database. backend is "sqlite" or "postgres";
// dsn is a file path for sqlite or a connection string for postgres.
func NewStore(backend, dsn string, logger *zap.Logger) (*Store, error) {
	var driver string
	switch backend {
	case "sqlite":
		driver = "sqlite3"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported session backend %q", backend)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s turn store: %w", backend, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping turn store: %w", err)
	}
	if _, err := db.ExecContext(ctx, turnSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init turn schema: %w", err)
	}

	logger.Info("Turn store initialized", zap.String("backend", backend))
	return &Store{db: db, logger: logger}, nil
}

// NewStoreFromDB wraps an existing connection. Used by tests.
func NewStoreFromDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// AppendTurn appends one completed research turn to a session's log and
// returns the new turn id.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn models.ResearchTurn) (string, error) {
	payload, err := json.Marshal(turn)
	if err != nil {
		return "", fmt.Errorf("marshal turn: %w", err)
	}

	id := uuid.New().String()
	query := s.db.Rebind(`INSERT INTO research_turns (id, session_id, turn, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, sessionID, string(payload), turn.Timestamp.UTC()); err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}

	metrics.TurnsAppended.Inc()
	s.logger.Debug("Appended research turn",
		zap.String("session_id", sessionID),
		zap.String("turn_id", id),
	)
	return id, nil
}

// GetTurns returns all turns of a session in append order.
func (s *Store) GetTurns(ctx context.Context, sessionID string) ([]models.ResearchTurn, error) {
	query := s.db.Rebind(`SELECT turn FROM research_turns WHERE session_id = ? ORDER BY created_at ASC`)
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}

	turns := make([]models.ResearchTurn, 0, len(rows))
	for _, raw := range rows {
		var t models.ResearchTurn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			// A single corrupt row should not hide the rest of the log.
			s.logger.Warn("Skipping unreadable turn row", zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
