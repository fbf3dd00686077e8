package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists dashboard notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	// List returns notifications newest first.
	List(ctx context.Context, limit, offset int) ([]*Notification, error)
	// MarkRead sets read=true and returns the updated row, or
	// ErrNotificationNotFound.
	MarkRead(ctx context.Context, id string) (*Notification, error)
	// MarkAllRead flips every unread notification in one statement and
	// returns how many changed.
	MarkAllRead(ctx context.Context) (int64, error)
	CountUnread(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryStore keeps notifications in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Notification)}
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Notification, error) {
	s.mu.RLock()
	all := make([]*Notification, 0, len(s.items))
	for _, n := range s.items {
		cp := *n
		all = append(all, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []*Notification{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	n.Read = true
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, n := range s.items {
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, n := range s.items {
		if n.CreatedAt.Before(cutoff) {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}
