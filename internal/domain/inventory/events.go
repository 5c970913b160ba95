package inventory

import "time"

// StockReservedEvent is emitted after an order transaction commits a stock decrement.
type StockReservedEvent struct {
	OrderID    string
	MerchantID string
	StockKey   string
	Quantity   int
	OccurredAt time.Time
}

func (StockReservedEvent) EventName() string  { return "inventory.reserved" }
func (e StockReservedEvent) EventKey() string { return e.StockKey }

func NewStockReservedEvent(orderID, merchantID, stockKey string, quantity int) StockReservedEvent {
	return StockReservedEvent{
		OrderID:    orderID,
		MerchantID: merchantID,
		StockKey:   stockKey,
		Quantity:   quantity,
		OccurredAt: time.Now().UTC(),
	}
}
