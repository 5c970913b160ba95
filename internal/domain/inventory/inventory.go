package inventory

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: stock key not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Level is the available stock of one variant or listing at one storage location.
type Level struct {
	StockKey   string
	LocationID string
	Priority   int
	Available  int
	UpdatedAt  time.Time
}

func NewLevel(stockKey, locationID string, available int) (*Level, error) {
	if available < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Level{
		StockKey:   stockKey,
		LocationID: locationID,
		Available:  available,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

func (l *Level) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > l.Available {
		return ErrInsufficientStock
	}
	l.Available -= quantity
	l.touch()
	return nil
}

func (l *Level) touch() {
	l.UpdatedAt = time.Now().UTC()
}

// Total sums available stock across locations.
func Total(levels []Level) int {
	total := 0
	for _, l := range levels {
		total += l.Available
	}
	return total
}

// Deduction is the quantity taken from one location.
type Deduction struct {
	LocationID string
	Quantity   int
}

// Plan spreads quantity across levels by priority, then location id, draining each
// location before moving to the next. It fails without a partial plan when the
// summed stock is short.
func Plan(levels []Level, quantity int) ([]Deduction, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if Total(levels) < quantity {
		return nil, ErrInsufficientStock
	}
	ordered := append([]Level(nil), levels...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].LocationID < ordered[j].LocationID
	})

	remaining := quantity
	out := make([]Deduction, 0, len(ordered))
	for _, l := range ordered {
		if remaining == 0 {
			break
		}
		if l.Available <= 0 {
			continue
		}
		take := min(l.Available, remaining)
		out = append(out, Deduction{LocationID: l.LocationID, Quantity: take})
		remaining -= take
	}
	return out, nil
}

// InsufficientStockError names the cart line that could not be covered.
type InsufficientStockError struct {
	LineID    string
	StockKey  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for line %s (%s): requested %d, available %d",
		e.LineID, e.StockKey, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
