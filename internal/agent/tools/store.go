package tools

import (
	"context"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/tilemart/salescore/internal/agent/model"
)

// CustomerStore is the data-store collaborator contract for customer records
// and project checkpoints.
type CustomerStore interface {
	GetOrCreateCustomer(ctx context.Context, customerID string) (*model.Customer, error)
	SaveProject(ctx context.Context, facts *model.ProjectFacts) (string, error)
}

// MemoryCustomerStore is an in-process CustomerStore for tests and local runs.
type MemoryCustomerStore struct {
	mu        sync.Mutex
	customers map[string]*model.Customer
	projects  map[string]*model.ProjectFacts
}

func NewMemoryCustomerStore() *MemoryCustomerStore {
	return &MemoryCustomerStore{
		customers: make(map[string]*model.Customer),
		projects:  make(map[string]*model.ProjectFacts),
	}
}

func (s *MemoryCustomerStore) GetOrCreateCustomer(_ context.Context, customerID string) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if customerID == "" {
		customerID = shortuuid.New()
	}
	if c, ok := s.customers[customerID]; ok {
		return c, nil
	}
	c := &model.Customer{ID: customerID}
	s.customers[customerID] = c
	return c, nil
}

func (s *MemoryCustomerStore) SaveProject(_ context.Context, facts *model.ProjectFacts) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := shortuuid.New()
	copied := *facts
	copied.Facts = make(map[string]string, len(facts.Facts))
	for k, v := range facts.Facts {
		copied.Facts[k] = v
	}
	s.projects[id] = &copied
	return id, nil
}

// Project returns a stored checkpoint, for tests.
func (s *MemoryCustomerStore) Project(id string) (*model.ProjectFacts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return p, ok
}

var _ CustomerStore = (*MemoryCustomerStore)(nil)
