package connection

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
)

type mockRepo struct {
	store map[uuid.UUID]*Connection
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Connection)}
}

func (m *mockRepo) Create(_ context.Context, c *Connection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.store[c.ID] = c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Connection, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Connection, int, error) {
	var out []*Connection
	for _, c := range m.store {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateToken(_ context.Context, id uuid.UUID, token string) error {
	c, ok := m.store[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	c.BearerToken = token
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func newTestService() *Service {
	return NewService(newMockRepo(), provider.DefaultRegistry())
}

func validConnection(vendor provider.Vendor) *Connection {
	tenant := "org-1"
	c := &Connection{
		Vendor:      vendor,
		BaseURL:     "https://fhir.vendor.example/R4",
		BearerToken: "tok",
		PatientID:   "pat-1",
	}
	if vendor == provider.VendorCerner || vendor == provider.VendorAthenaHealth {
		c.TenantID = &tenant
	}
	return c
}

func TestCreate_Success(t *testing.T) {
	svc := newTestService()
	c := validConnection(provider.VendorEpic)
	if err := svc.Create(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Error("expected assigned id")
	}
}

func TestCreate_UnknownVendor(t *testing.T) {
	svc := newTestService()
	c := validConnection("meditech")
	if err := svc.Create(context.Background(), c); err == nil {
		t.Fatal("expected error for unknown vendor")
	}
}

func TestCreate_RequiredFields(t *testing.T) {
	svc := newTestService()

	c := validConnection(provider.VendorEpic)
	c.BaseURL = ""
	if err := svc.Create(context.Background(), c); err == nil {
		t.Error("expected error for missing base_url")
	}

	c = validConnection(provider.VendorEpic)
	c.BaseURL = "not a url"
	if err := svc.Create(context.Background(), c); err == nil {
		t.Error("expected error for relative base_url")
	}

	c = validConnection(provider.VendorEpic)
	c.BearerToken = ""
	if err := svc.Create(context.Background(), c); err == nil {
		t.Error("expected error for missing bearer_token")
	}

	c = validConnection(provider.VendorEpic)
	c.PatientID = ""
	if err := svc.Create(context.Background(), c); err == nil {
		t.Error("expected error for missing patient_id")
	}
}

func TestCreate_TenantRequiredForTenantRoutedVendor(t *testing.T) {
	svc := newTestService()
	c := validConnection(provider.VendorCerner)
	c.TenantID = nil
	if err := svc.Create(context.Background(), c); err == nil {
		t.Fatal("expected error for missing tenant on cerner connection")
	}
}

func TestCredentialStatus_OpaqueToken(t *testing.T) {
	svc := newTestService()
	c := validConnection(provider.VendorEpic)
	if err := svc.Create(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := svc.CredentialStatus(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Expired {
		t.Error("opaque token should not be reported expired")
	}
	if status.Expiry != nil {
		t.Error("opaque token has no known expiry")
	}
}
