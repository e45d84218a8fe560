package sandbox

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/paycheckout/internal/domain"
	apperrors "github.com/utafrali/paycheckout/pkg/errors"
)

// Order statuses, as the provider reports them.
const (
	OrderCreated   = "CREATED"
	OrderCompleted = "COMPLETED"
)

// Order is a sandbox order. The scenario is fixed when the order is created
// so switching scenarios never changes an order already handed out.
type Order struct {
	ID        string
	Wallet    bool
	Cart      domain.Cart
	Scenario  Scenario
	Status    string
	CaptureID string
	CreatedAt time.Time
}

// store keeps orders in memory for the life of the process.
type store struct {
	mu     sync.Mutex
	orders map[string]*Order
	now    func() time.Time
}

func newStore() *store {
	return &store{orders: make(map[string]*Order), now: time.Now}
}

func (s *store) create(cart domain.Cart, wallet bool, scenario Scenario) Order {
	o := &Order{
		ID:        newOrderID(),
		Wallet:    wallet,
		Cart:      cart.Clone(),
		Scenario:  scenario,
		Status:    OrderCreated,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
	return *o
}

func (s *store) get(id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, apperrors.NotFound("order", id)
	}
	return *o, nil
}

// complete marks an order captured. It fails when the order is unknown or
// already captured, so each order is captured at most once.
func (s *store) complete(id, captureID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, apperrors.NotFound("order", id)
	}
	if o.Status == OrderCompleted {
		return Order{}, apperrors.Conflict("order " + id + " was already captured")
	}
	o.Status = OrderCompleted
	o.CaptureID = captureID
	return *o, nil
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// newOrderID returns a 17 character upper-case id, shaped like provider order ids.
func newOrderID() string {
	return idFrom(uuid.New())
}

func idFrom(u uuid.UUID) string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	id := make([]byte, 17)
	for i := range id {
		id[i] = alphabet[int(u[i%len(u)]+byte(i))%len(alphabet)]
	}
	return string(id)
}
