// Package paper fills orders locally at the last seen price. It backs dry
// runs and tick replays where no exchange is involved.
package paper

import (
	"context"
	"errors"
	"sync"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"

	"github.com/google/uuid"
)

// ErrNoPrice is returned when an order arrives before any price was observed.
var ErrNoPrice = errors.New("paper placer has not seen a price yet")

// Placer implements ports.OrderPlacer with instant fills.
type Placer struct {
	mu       sync.Mutex
	quantity float64
	price    float64
	at       time.Time
	fills    []domain.PlacedOrder
	failNext error
}

var _ ports.OrderPlacer = (*Placer)(nil)

// NewPlacer returns a placer filling quantity per order.
func NewPlacer(quantity float64) *Placer {
	if quantity <= 0 {
		quantity = 1
	}
	return &Placer{quantity: quantity}
}

// Observe records the latest market price. Feed it every tick before the engine.
func (p *Placer) Observe(tick domain.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = tick.Price
	p.at = tick.Time
}

// FailNext makes the next Place call return err.
func (p *Placer) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

// Place fills side at the last observed price. Like a dispatched exchange
// order, it is not aborted by a cancelled ctx.
func (p *Placer) Place(ctx context.Context, side domain.OrderSide) (*domain.PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return nil, err
	}
	if p.price == 0 {
		return nil, ErrNoPrice
	}
	fill := domain.PlacedOrder{
		ExchangeOrderID: "paper-" + uuid.NewString(),
		Side:            side,
		Quantity:        p.quantity,
		ExecutedPrice:   p.price,
		ExecutedAt:      p.at,
	}
	p.fills = append(p.fills, fill)
	return &fill, nil
}

// Fills returns every fill so far, oldest first.
func (p *Placer) Fills() []domain.PlacedOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PlacedOrder(nil), p.fills...)
}
