package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	redislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotStore persists one cart snapshot per session. Load returns (nil, nil) when no
// snapshot exists. Save replaces the whole document in one write.
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, payload []byte) error
	Clear(ctx context.Context, sessionID string) error
}

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionID string) string
}

// RedisStore keeps snapshots under sf:cart:<session> with a sliding TTL.
type RedisStore struct {
	kv  redisKV
	ttl time.Duration
}

func NewRedisStore(kv redisKV, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{kv: kv, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(raw), nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, payload []byte) error {
	return s.kv.Set(ctx, s.kv.CartKey(sessionID), string(payload), s.ttl)
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.kv.Del(ctx, s.kv.CartKey(sessionID))
}

// DBStore keeps snapshots in the cart_snapshots table, one upserted row per session.
type DBStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewDBStore(db *gorm.DB, ttl time.Duration) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &DBStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *DBStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var row models.CartSnapshot
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if row.ExpiresAt != nil && !row.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	return []byte(row.Payload), nil
}

func (s *DBStore) Save(ctx context.Context, sessionID string, payload []byte) error {
	now := s.now().UTC()
	row := models.CartSnapshot{
		SessionID: sessionID,
		Payload:   json.RawMessage(payload),
		UpdatedAt: now,
	}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		row.ExpiresAt = &exp
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *DBStore) Clear(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.CartSnapshot{}).Error
}

// MemoryStore is a process-local store for tests and single-node development.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make([]byte, len(payload))
	copy(doc, payload)
	s.docs[sessionID] = doc
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sessionID)
	return nil
}
