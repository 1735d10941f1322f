package subscribers

import (
	"context"
	"slices"
	"sync"
)

type regionLists struct {
	subscribed   []string
	unsubscribed []string
	history      []InviteRecord
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	regions map[string]*regionLists
}

func NewMemoryStore(regions ...string) *MemoryStore {
	s := &MemoryStore{regions: make(map[string]*regionLists)}
	for _, r := range regions {
		s.regions[r] = &regionLists{}
	}
	return s
}

func (s *MemoryStore) EnsureRegion(_ context.Context, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[region]; !ok {
		s.regions[region] = &regionLists{}
	}
	return nil
}

func (s *MemoryStore) GetSubscriberList(_ context.Context, region string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[region]
	if !ok {
		return nil, RegionNotFound(region)
	}
	return slices.Clone(r.subscribed), nil
}

func (s *MemoryStore) GetUnsubscribedList(_ context.Context, region string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[region]
	if !ok {
		return nil, RegionNotFound(region)
	}
	return slices.Clone(r.unsubscribed), nil
}

func (s *MemoryStore) IsSubscribed(_ context.Context, email, region string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[region]
	if !ok {
		return false, RegionNotFound(region)
	}
	return slices.Contains(r.subscribed, email), nil
}

func (s *MemoryStore) IsUnsubscribed(_ context.Context, email, region string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[region]
	if !ok {
		return false, RegionNotFound(region)
	}
	return slices.Contains(r.unsubscribed, email), nil
}

func (s *MemoryStore) AddToSubList(_ context.Context, email, region string) error {
	return s.update(region, func(r *regionLists) { r.subscribed = addToSet(r.subscribed, email) })
}

func (s *MemoryStore) RemoveFromSubList(_ context.Context, email, region string) error {
	return s.update(region, func(r *regionLists) { r.subscribed = pull(r.subscribed, email) })
}

func (s *MemoryStore) AddToUnsubList(_ context.Context, email, region string) error {
	return s.update(region, func(r *regionLists) { r.unsubscribed = addToSet(r.unsubscribed, email) })
}

func (s *MemoryStore) RemoveFromUnsubList(_ context.Context, email, region string) error {
	return s.update(region, func(r *regionLists) { r.unsubscribed = pull(r.unsubscribed, email) })
}

func (s *MemoryStore) AddToInviteHistory(_ context.Context, region string, rec InviteRecord) error {
	return s.update(region, func(r *regionLists) { r.history = append(r.history, rec) })
}

// InviteHistory returns a copy of the region's history.
func (s *MemoryStore) InviteHistory(region string) []InviteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.regions[region]; ok {
		return slices.Clone(r.history)
	}
	return nil
}

func (s *MemoryStore) update(region string, fn func(*regionLists)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[region]
	if !ok {
		return RegionNotFound(region)
	}
	fn(r)
	return nil
}

func addToSet(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func pull(list []string, v string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == v })
}
