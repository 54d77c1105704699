package domain

import "time"

// Tick is a single price observation from the market data stream.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}
