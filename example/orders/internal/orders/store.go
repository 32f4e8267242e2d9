package orders

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("orders: order not found")
	ErrProductNameMissing = errors.New("orders: productName is required")
)

// Order is a single purchase.
type Order struct {
	OrderID     string `json:"orderId"`
	ProductName string `json:"productName"`
}

// Validate checks the fields a client must supply.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ProductName) == "" {
		return ErrProductNameMissing
	}
	return nil
}

// EventType names what happened to an order.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is one entry in an order's history.
type Event struct {
	OrderID   string    `json:"orderId"`
	Type      EventType `json:"type"`
	OrderDate time.Time `json:"orderDate"`
}

// Store is an in-memory order repository. Each service instance owns its
// own Store, so instances of a fleet do not share state.
type Store struct {
	mu     sync.RWMutex
	orders map[string]Order
	order  []string
	events map[string][]Event
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		orders: make(map[string]Order),
		events: make(map[string][]Event),
		now:    time.Now,
	}
}

// Seed creates one order per product name.
func (s *Store) Seed(products ...string) []Order {
	out := make([]Order, 0, len(products))
	for _, p := range products {
		o, err := s.Create(Order{ProductName: p})
		if err == nil {
			out = append(out, o)
		}
	}
	return out
}

// All returns every order in creation order.
func (s *Store) All() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.orders[id])
	}
	return out
}

func (s *Store) Get(id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// Create stores o under a new UUID; any OrderID on o is ignored.
func (s *Store) Create(o Order) (Order, error) {
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	o.OrderID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.order = append(s.order, o.OrderID)
	s.record(o.OrderID, EventCreated)
	return o, nil
}

// Update replaces the product name of an existing order.
func (s *Store) Update(id, productName string) (Order, error) {
	o := Order{OrderID: id, ProductName: productName}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return Order{}, ErrNotFound
	}
	s.orders[id] = o
	s.record(id, EventUpdated)
	return o, nil
}

// Delete removes an order and returns it. Its history is kept.
func (s *Store) Delete(id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	delete(s.orders, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.record(id, EventDeleted)
	return o, nil
}

// Events returns the history of an order, oldest first.
func (s *Store) Events(id string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}

// record must be called with mu held.
func (s *Store) record(id string, t EventType) {
	s.events[id] = append(s.events[id], Event{OrderID: id, Type: t, OrderDate: s.now()})
}
