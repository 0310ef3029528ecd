package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"slotkeeper/internal/domain"
	"slotkeeper/internal/models"

	"github.com/rs/zerolog"
)

var resourceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

type ResourceService struct {
	repo    domain.ResourceStore
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewResourceService(repo domain.ResourceStore, timeout time.Duration, logger *zerolog.Logger) *ResourceService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ResourceService{repo: repo, timeout: timeout, logger: logger}
}

func validateResource(r *models.Resource) error {
	if r == nil {
		return invalid("resource is required")
	}
	r.ID = strings.TrimSpace(r.ID)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if r.ID == models.AutoResource || !resourceIDPattern.MatchString(r.ID) {
		return invalid("resource id %q must be lowercase letters, digits, '-' or '_' and not %q", r.ID, models.AutoResource)
	}
	if r.DisplayName == "" {
		return invalid("display name is required")
	}
	return nil
}

// List returns active resources, or all of them when includeInactive is set.
func (s *ResourceService) List(ctx context.Context, includeInactive bool) ([]*models.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		resources []*models.Resource
		err       error
	)
	if includeInactive {
		resources, err = s.repo.GetResources(ctx)
	} else {
		resources, err = s.repo.GetActiveResources(ctx)
	}
	if err != nil {
		return nil, storeError(opRead, err)
	}
	return resources, nil
}

func (s *ResourceService) Get(ctx context.Context, id string) (*models.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	r, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, storeError(opRead, err)
	}
	return r, nil
}

func (s *ResourceService) Create(ctx context.Context, r *models.Resource) error {
	if err := validateResource(r); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.CreateResource(ctx, r); err != nil {
		return storeError("create resource", err)
	}
	s.logger.Info().Str("resource_id", r.ID).Msg("resource created")
	return nil
}

func (s *ResourceService) Update(ctx context.Context, r *models.Resource) error {
	if err := validateResource(r); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.UpdateResource(ctx, r); err != nil {
		return storeError("update resource", err)
	}
	return nil
}

// Deactivate keeps existing bookings on the resource; it only stops new
// assignments.
func (s *ResourceService) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.DeactivateResource(ctx, id); err != nil {
		return storeError("deactivate resource", err)
	}
	s.logger.Info().Str("resource_id", id).Msg("resource deactivated")
	return nil
}
