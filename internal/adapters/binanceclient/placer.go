package binanceclient

import (
	"context"
	"fmt"
	"strconv"

	"levelBot/internal/domain"
	"levelBot/internal/ports"
)

// Placer executes strategy decisions as fixed size market orders.
type Placer struct {
	exchange ports.ExchangeClient
	symbol   string
	quantity string
	logger   ports.Logger
}

var _ ports.OrderPlacer = (*Placer)(nil)

// NewPlacer binds an exchange client to one symbol and order quantity.
func NewPlacer(exchange ports.ExchangeClient, symbol string, quantity float64, logger ports.Logger) (*Placer, error) {
	if exchange == nil || logger == nil {
		return nil, fmt.Errorf("exchange client and logger are required: %w", ports.ErrConfigurationError)
	}
	if symbol == "" || quantity <= 0 {
		return nil, fmt.Errorf("symbol and a positive quantity are required: %w", ports.ErrConfigurationError)
	}
	return &Placer{
		exchange: exchange,
		symbol:   symbol,
		quantity: strconv.FormatFloat(quantity, 'f', -1, 64),
		logger:   logger,
	}, nil
}

// Place sends one market order and reports the fill.
func (p *Placer) Place(ctx context.Context, side domain.OrderSide) (*domain.PlacedOrder, error) {
	resp, err := p.exchange.PlaceMarketOrder(ctx, p.symbol, side, p.quantity)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty order response: %w", ports.ErrOrderPlacementFailed)
	}

	qty := resp.ExecutedQty
	if qty == 0 {
		qty = resp.OrigQuantity
	}
	price := resp.AvgPrice
	if price == 0 {
		// Some acknowledgements come back before the fill is priced
		last, err := p.exchange.GetTickerPrice(ctx, p.symbol)
		if err != nil {
			p.logger.Warn(ctx, "Fill price unknown and ticker unavailable", map[string]interface{}{"orderID": resp.OrderID, "error": err.Error()})
		} else {
			price = last
		}
	}

	return &domain.PlacedOrder{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Side:            side,
		Quantity:        qty,
		ExecutedPrice:   price,
		ExecutedAt:      resp.Timestamp,
	}, nil
}
