package meetings

import (
	"context"
	"sync"
	"time"

	"github.com/Rudra9905/Studify/internal/domain"
)

// Store persists meetings. The relay and service only ever look meetings up
// by code; content of meetings is never stored.
type Store interface {
	Create(ctx context.Context, m *domain.Meeting) error
	ActiveByCode(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error)
	End(ctx context.Context, code domain.MeetingCode, endedAt time.Time) error
}

// MemoryStore is the default store for dev and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingCode]*domain.Meeting
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{meetings: make(map[domain.MeetingCode]*domain.Meeting)}
}

func (s *MemoryStore) Create(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.meetings[m.Code] = &cp
	return nil
}

func (s *MemoryStore) ActiveByCode(_ context.Context, code domain.MeetingCode) (*domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[code]
	if !ok || !m.Active {
		return nil, ErrMeetingNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) End(_ context.Context, code domain.MeetingCode, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[code]
	if !ok || !m.Active {
		return ErrMeetingNotFound
	}
	m.Active = false
	m.EndedAt = &endedAt
	return nil
}
