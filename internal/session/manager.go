package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/metrics"
)

// Manager handles session lifecycle with a Redis backend and a small local
// cache. Sessions carry the conversation history used to seed planning
// context; the durable turn log lives in the Store.
type Manager struct {
	client       *redis.Client
	logger       *zap.Logger
	ttl          time.Duration
	historyLimit int

	mu         sync.RWMutex
	localCache map[string]*Session
}

// NewManager connects to Redis and returns a session manager. The Redis
// password is taken from REDIS_PASSWORD when set.
func NewManager(redisAddr string, ttl time.Duration, historyLimit int, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Manager{
		client:       client,
		logger:       logger,
		ttl:          ttl,
		historyLimit: historyLimit,
		localCache:   make(map[string]*Session),
	}, nil
}

// Create starts a new session with a generated id.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		History:   make([]Message, 0),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.localCache[s.ID] = s
	m.mu.Unlock()

	metrics.SessionsCreated.Inc()
	m.logger.Info("Created session", zap.String("session_id", s.ID))
	return s, nil
}

// Get retrieves a session by id, checking the local cache first.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.localCache[sessionID]
	m.mu.RUnlock()
	if ok {
		metrics.SessionCacheHits.Inc()
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		return cached, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if s.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &s
	m.mu.Unlock()
	return &s, nil
}

// GetOrCreate returns the existing session or a fresh one when the id is
// unknown, expired, or empty.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID != "" {
		if s, err := m.Get(ctx, sessionID); err == nil {
			return s, nil
		}
	}
	return m.Create(ctx)
}

// AppendMessage adds one history message to a session, trimming to the
// configured history limit.
func (m *Manager) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.History = append(s.History, msg)
	if len(s.History) > m.historyLimit {
		s.History = s.History[len(s.History)-m.historyLimit:]
	}
	s.UpdatedAt = time.Now()
	return m.save(ctx, s)
}

// IncrementTurnCount bumps the per-session turn counter.
func (m *Manager) IncrementTurnCount(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.TurnCount++
	s.UpdatedAt = time.Now()
	return m.save(ctx, s)
}

// Delete removes a session from Redis and the local cache.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.mu.Lock()
	delete(m.localCache, sessionID)
	m.mu.Unlock()
	return nil
}

// Close releases the Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	if err := m.client.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.mu.Lock()
	m.localCache[s.ID] = s
	m.mu.Unlock()
	return nil
}

func sessionKey(id string) string {
	return "session:" + id
}
