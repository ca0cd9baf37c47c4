package connection

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/internal/platform/fhir"
)

type Service struct {
	repo     Repository
	profiles *provider.Registry
}

func NewService(repo Repository, profiles *provider.Registry) *Service {
	return &Service{repo: repo, profiles: profiles}
}

func (s *Service) Create(ctx context.Context, c *Connection) error {
	if _, err := s.profiles.Get(c.Vendor); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL")
	}
	if c.BearerToken == "" {
		return fmt.Errorf("bearer_token is required")
	}
	if c.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	profile, _ := s.profiles.Get(c.Vendor)
	if profile.TenantHeader != "" && c.Tenant() == "" {
		return fmt.Errorf("vendor %s requires a tenant_id", c.Vendor)
	}

	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Connection, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) UpdateToken(ctx context.Context, id uuid.UUID, bearerToken string) error {
	if bearerToken == "" {
		return fmt.Errorf("bearer_token is required")
	}
	return s.repo.UpdateToken(ctx, id, bearerToken)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// CredentialStatus reports on the connection's bearer credential: its expiry
// when it is an inspectable JWT, and whether it has already lapsed. Token
// refresh itself belongs to the account system.
type CredentialStatus struct {
	Expiry  *time.Time `json:"expiry,omitempty"`
	Expired bool       `json:"expired"`
}

func (s *Service) CredentialStatus(ctx context.Context, id uuid.UUID) (*CredentialStatus, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expiry, err := fhir.CredentialExpiry(c.BearerToken)
	if err != nil {
		return nil, err
	}
	return &CredentialStatus{
		Expiry:  expiry,
		Expired: fhir.CredentialExpired(c.BearerToken, time.Now()),
	}, nil
}
