package ports

import (
	"context"
	"time"

	"levelBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// ExchangeClient is the subset of exchange operations the bot relies on.
type ExchangeClient interface {
	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetTickerPrice retrieves the last traded price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceMarketOrder places a market order and waits for the exchange acknowledgement.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// StreamTrades starts a trade stream for the symbol. The handler receives one tick per
	// aggregated trade. doneCh closes when the stream gives up; stopCh stops it.
	StreamTrades(ctx context.Context, symbol string, handler func(tick domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// OrderPlacer executes one market order for a strategy decision. It is called at
// most once per decision and is never retried by the engine.
type OrderPlacer interface {
	Place(ctx context.Context, side domain.OrderSide) (*domain.PlacedOrder, error)
}
