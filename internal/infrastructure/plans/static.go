package plans

import (
	"context"
	"sync"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

// Limits holds the plan ceilings applied to one account.
type Limits struct {
	Premium              bool
	MaxConcurrentStreams int
	MaxConcurrentViewers int
}

// StaticPlanService serves plan entitlements from configuration: a default
// tier plus per-account overrides. A real deployment swaps this for a
// billing-service client implementing the same port.
type StaticPlanService struct {
	defaults  Limits
	overrides map[domain.UserID]Limits
	mu        sync.RWMutex
}

func NewStaticPlanService(defaults Limits, overrides map[domain.UserID]Limits) ports.PlanService {
	if overrides == nil {
		overrides = make(map[domain.UserID]Limits)
	}
	return &StaticPlanService{
		defaults:  defaults,
		overrides: overrides,
	}
}

func (s *StaticPlanService) limitsFor(ownerID domain.UserID) Limits {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limits, ok := s.overrides[ownerID]; ok {
		return limits
	}
	return s.defaults
}

func (s *StaticPlanService) IsPremium(ctx context.Context, ownerID domain.UserID) (bool, error) {
	return s.limitsFor(ownerID).Premium, nil
}

func (s *StaticPlanService) MaxConcurrentStreams(ctx context.Context, ownerID domain.UserID) (int, error) {
	return s.limitsFor(ownerID).MaxConcurrentStreams, nil
}

func (s *StaticPlanService) MaxConcurrentViewers(ctx context.Context, ownerID domain.UserID) (int, error) {
	return s.limitsFor(ownerID).MaxConcurrentViewers, nil
}

// SetOverride replaces the limits for one account at runtime.
func (s *StaticPlanService) SetOverride(ownerID domain.UserID, limits Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[ownerID] = limits
}
