package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
)

// MemoryStore is the in-process Store backend. It owns its counter and maps
// explicitly so independent instances can coexist (one per ledger under
// test, for example); nothing in here is package-global. Safe for concurrent
// use: mutation from HTTP handlers and the transport receive loop serializes
// on one mutex per store.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	messages []models.Message
	lifts    map[int64]models.Lift
	quick    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		lifts:  make(map[int64]models.Lift),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.ID = s.nextID
	s.nextID++

	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = constants.DefaultMessageLimit
	}

	n := len(s.messages)
	if limit > n {
		limit = n
	}

	// Most-recent first
	result := make([]models.Message, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.messages[i])
	}
	return result, nil
}

func (s *MemoryStore) UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpsertLift(ctx context.Context, lift *models.Lift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lift.CreatedAt.IsZero() {
		lift.CreatedAt = time.Now().UTC()
	}

	stored := *lift
	stored.Rows = make([]models.LiftRow, len(lift.Rows))
	copy(stored.Rows, lift.Rows)

	s.lifts[lift.ID] = stored
	return nil
}

func (s *MemoryStore) ListLifts(ctx context.Context) ([]models.Lift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lifts := make([]models.Lift, 0, len(s.lifts))
	for _, lift := range s.lifts {
		out := lift
		out.Rows = make([]models.LiftRow, len(lift.Rows))
		copy(out.Rows, lift.Rows)
		lifts = append(lifts, out)
	}

	sort.Slice(lifts, func(i, j int) bool {
		return lifts[i].ID > lifts[j].ID
	})
	return lifts, nil
}

func (s *MemoryStore) UpdateLiftStatus(ctx context.Context, id int64, status models.LiftStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lift, ok := s.lifts[id]
	if !ok {
		return false, nil
	}
	lift.Status = status
	s.lifts[id] = lift
	return true, nil
}

func (s *MemoryStore) AddQuickReply(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.quick {
		if existing == text {
			return nil
		}
	}
	s.quick = append(s.quick, text)
	return nil
}

func (s *MemoryStore) RemoveQuickReply(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.quick {
		if existing == text {
			s.quick = append(s.quick[:i], s.quick[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) ListQuickReplies(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replies := make([]string, len(s.quick))
	copy(replies, s.quick)
	return replies, nil
}
