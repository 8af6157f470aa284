package client

import (
	"context"
	"fmt"
	"sync"

	"egiro-gateway/internal/models"
	"egiro-gateway/pkg/errors"

	"go.uber.org/zap"
)

// ProfileProvider resolves a tenant slug to its profile in the active
// environment. Returned profiles are copies and may not be shared back.
type ProfileProvider interface {
	GetProfile(ctx context.Context, slug string) (*models.ClientProfile, error)
}

// InMemoryRegistry holds profiles added at runtime, for development and tests.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*models.ClientProfile
	logger   *zap.Logger
}

func NewInMemoryRegistry(logger *zap.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		profiles: make(map[string]*models.ClientProfile),
		logger:   logger,
	}
}

// AddProfile stores a copy of profile under its slug.
func (r *InMemoryRegistry) AddProfile(profile *models.ClientProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Slug] = copyProfile(profile)
}

func (r *InMemoryRegistry) GetProfile(ctx context.Context, slug string) (*models.ClientProfile, error) {
	select {
	case <-ctx.Done():
		return nil, errors.WrapDomainError(ctx.Err(), errors.KindInternal, errors.CodeInternal, "client lookup cancelled", "context cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[slug]
	if !exists {
		return nil, errors.NewConfigurationError(fmt.Sprintf("unknown client %q", slug))
	}
	return copyProfile(profile), nil
}

func copyProfile(p *models.ClientProfile) *models.ClientProfile {
	c := *p
	if p.AllowedCIDRs != nil {
		c.AllowedCIDRs = append([]string(nil), p.AllowedCIDRs...)
	}
	return &c
}
