package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Zhima-Mochi/minishop-settlement/internal/application"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dominventory "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService       = "order-service"
	useCaseOrderCreate = "order.create"
	publishPeer        = "outbox"
	publishTimeout     = 300 * time.Millisecond
	defaultTxTimeout   = 5 * time.Second
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
)

type CreateOrdersInput struct {
	CheckoutID string
	Cart       cart.Cart
	Resolution dompromo.Resolution
	Selection  domship.Selection
	Customer   cart.Customer
	Address    cart.Address
	Notes      string
	// TaxByMerchant is supplied by the tax collaborator; absent merchants pay none.
	TaxByMerchant  map[string]int64
	IdempotencyKey string
}

type CreateOrdersResult struct {
	CheckoutID string
	Orders     []*domain.Order
	Replayed   bool
}

// OrderIDs returns the created order ids in merchant order.
func (r *CreateOrdersResult) OrderIDs() []string {
	ids := make([]string, 0, len(r.Orders))
	for _, o := range r.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}

// CreateOrdersUseCase turns a settled cart into one order per merchant inside a
// single transaction.
type CreateOrdersUseCase struct {
	uow         domain.UnitOfWork
	repo        domain.Repository
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	txTimeout   time.Duration

	in        application.Instruments
	discounts observability.Counter // discount_allocated_minor_total{currency}
}

func NewCreateOrdersUseCase(
	uow domain.UnitOfWork,
	repo domain.Repository,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	txTimeout time.Duration,
) *CreateOrdersUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &CreateOrdersUseCase{
		uow:         uow,
		repo:        repo,
		idGenerator: idGen,
		publisher:   publisher,
		txTimeout:   txTimeout,
		in:          application.NewInstruments(tel, orderService),
		discounts:   tel.Metrics().Counter(observability.MDiscountAllocated),
	}
}

func (uc *CreateOrdersUseCase) Execute(ctx context.Context, cmd CreateOrdersInput) (_ *CreateOrdersResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderCreate, "CreateOrders",
		attribute.String("checkout.id", cmd.CheckoutID),
		attribute.Int("cart.lines", len(cmd.Cart.Lines)),
		attribute.String("shipping.service", cmd.Selection.ServiceName),
	)
	defer func() { run.End(err) }()

	if err := validate(cmd); err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		if replay, ok, lerr := uc.replay(ctx, cmd.IdempotencyKey); lerr != nil {
			run.Fail("IDEMPOTENCY_LOOKUP_FAILED")
			return nil, lerr
		} else if ok {
			run.Status("IDEMPOTENT_REPLAY")
			run.Span().AddEvent("checkout.idempotent_replay")
			return replay, nil
		}
	}

	orders, events, err := uc.commit(ctx, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) && cmd.IdempotencyKey != "" {
			if replay, ok, _ := uc.replay(ctx, cmd.IdempotencyKey); ok {
				run.Status("IDEMPOTENT_REPLAY")
				return replay, nil
			}
		}
		var insufficient *dominventory.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			run.Fail("INSUFFICIENT_STOCK")
			run.With(observability.F("line_id", insufficient.LineID))
		case errors.Is(err, dompromo.ErrUsageLimitReached):
			run.Fail("USAGE_LIMIT_REACHED")
		default:
			run.Fail("TX_ABORTED")
		}
		return nil, err
	}

	var discount int64
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		discount += o.DiscountAmount
		ids = append(ids, o.ID)
	}
	uc.discounts.Add(float64(discount), observability.L("currency", cmd.Cart.Currency()))

	events = append(events, domain.NewOrdersCreatedEvent(cmd.CheckoutID, cmd.Customer.ID, orders))
	if publishErr := uc.publish(ctx, events); publishErr != nil {
		run.Status("EVENT_PUBLISH_FAILED")
		run.With(observability.F("event_publish_error", publishErr.Error()))
	}

	run.Span().AddEvent("checkout.orders_created",
		trace.WithAttributes(attribute.StringSlice("order.ids", ids)),
	)
	run.With(
		observability.F("order_ids", ids),
		observability.F("discount_amount", discount),
	)
	return &CreateOrdersResult{CheckoutID: cmd.CheckoutID, Orders: orders}, nil
}

// Replay returns the result of an earlier checkout placed with key, if any.
func (uc *CreateOrdersUseCase) Replay(ctx context.Context, key string) (*CreateOrdersResult, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	return uc.replay(ctx, key)
}

func (uc *CreateOrdersUseCase) replay(ctx context.Context, key string) (*CreateOrdersResult, bool, error) {
	existing, err := uc.repo.FindByIdempotency(ctx, key)
	switch {
	case err == nil && len(existing) > 0:
		return &CreateOrdersResult{CheckoutID: existing[0].CheckoutID, Orders: existing, Replayed: true}, true, nil
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

// commit runs every write in one unit of work. Events are returned, not
// published, so nothing leaves the process before the commit succeeds.
func (uc *CreateOrdersUseCase) commit(ctx context.Context, cmd CreateOrdersInput) ([]*domain.Order, []domoutbox.Event, error) {
	txCtx, cancel := context.WithTimeout(ctx, uc.txTimeout)
	defer cancel()

	var (
		orders []*domain.Order
		events []domoutbox.Event
	)
	err := uc.uow.WithinTx(txCtx, func(ctx context.Context, tx domain.Tx) error {
		orders, events = nil, nil

		if err := checkStock(ctx, tx, cmd.Cart.Lines); err != nil {
			return err
		}

		allocations := cmd.Resolution.ByLine()
		partitions := cmd.Cart.ByMerchant()
		for _, merchantID := range cmd.Cart.Merchants() {
			lines := partitions[merchantID]
			o, err := domain.New(draft(uc.idGenerator.NewID(), merchantID, lines, allocations, cmd))
			if err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			for _, l := range lines {
				if err := tx.Reserve(ctx, l.StockKey(), l.Quantity); err != nil {
					return withLine(err, l)
				}
				events = append(events, dominventory.NewStockReservedEvent(o.ID, merchantID, l.StockKey(), l.Quantity))
			}
			orders = append(orders, o)
		}

		for _, ruleID := range sortedRuleIDs(cmd.Resolution) {
			if err := tx.IncrementPromotionUsage(ctx, ruleID); err != nil {
				return fmt.Errorf("promotion %s: %w", ruleID, err)
			}
		}

		for _, o := range orders {
			evt := domain.NewCreatedEvent(o, snapshot(o, allocations, cmd.Selection))
			if err := tx.AppendAudit(ctx, evt); err != nil {
				return err
			}
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
	}
	return orders, events, nil
}

// checkStock re-reads availability inside the transaction. Lines sharing a
// stock key draw on the same total.
func checkStock(ctx context.Context, tx domain.Tx, lines []cart.Line) error {
	available := make(map[string]int)
	needed := make(map[string]int)
	for _, l := range lines {
		key := l.StockKey()
		if _, ok := available[key]; !ok {
			n, err := tx.GetAvailable(ctx, key)
			if err != nil && !errors.Is(err, dominventory.ErrNotFound) {
				return fmt.Errorf("line %s: %w", l.ID, err)
			}
			available[key] = n
		}
		needed[key] += l.Quantity
		if needed[key] > available[key] {
			return &dominventory.InsufficientStockError{
				LineID:    l.ID,
				StockKey:  key,
				Requested: needed[key],
				Available: available[key],
			}
		}
	}
	return nil
}

func withLine(err error, l cart.Line) error {
	var insufficient *dominventory.InsufficientStockError
	if errors.As(err, &insufficient) && insufficient.LineID == "" {
		insufficient.LineID = l.ID
	}
	return err
}

func draft(id, merchantID string, lines []cart.Line, allocations map[string]dompromo.Allocation, cmd CreateOrdersInput) domain.Draft {
	items := make([]domain.LineItem, 0, len(lines))
	for _, l := range lines {
		a := allocations[l.ID]
		items = append(items, domain.LineItem{
			CartLineID:     l.ID,
			ListingID:      l.ListingID,
			VariantID:      l.VariantID,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			Subtotal:       l.Subtotal(),
			DiscountAmount: a.Amount,
			PromotionID:    a.PromotionID,
			Options:        append(cart.VariantOptions(nil), l.Options...),
		})
	}
	return domain.Draft{
		ID:              id,
		CheckoutID:      cmd.CheckoutID,
		MerchantID:      merchantID,
		Customer:        cmd.Customer,
		Currency:        cmd.Cart.Currency(),
		LineItems:       items,
		ShippingAmount:  cmd.Selection.PerMerchantPrice[merchantID],
		TaxAmount:       cmd.TaxByMerchant[merchantID],
		ShippingService: cmd.Selection.ServiceName,
		ShippingAddress: cmd.Address,
		Notes:           cmd.Notes,
		IdempotencyKey:  cmd.IdempotencyKey,
	}
}

func snapshot(o *domain.Order, allocations map[string]dompromo.Allocation, sel domship.Selection) domain.SettlementSnapshot {
	s := domain.SettlementSnapshot{
		ShippingService:  sel.ServiceName,
		ShippingPrice:    sel.PerMerchantPrice[o.MerchantID],
		ShippingCurrency: sel.Currency,
		OptionTotalPrice: sel.TotalPrice,
	}
	for _, li := range o.LineItems {
		if a, ok := allocations[li.CartLineID]; ok {
			s.Allocations = append(s.Allocations, a)
		}
	}
	return s
}

func sortedRuleIDs(res dompromo.Resolution) []string {
	ids := res.RuleIDs()
	sort.Strings(ids)
	return ids
}

func validate(cmd CreateOrdersInput) error {
	if cmd.CheckoutID == "" {
		return cart.Invalid("checkout id is required")
	}
	if err := cmd.Cart.Validate(); err != nil {
		return err
	}
	if err := cmd.Address.Validate(); err != nil {
		return err
	}
	if err := cmd.Selection.Covers(cmd.Cart.Merchants()); err != nil {
		return err
	}
	if cmd.Selection.Currency != "" && cmd.Selection.Currency != cmd.Cart.Currency() {
		return cart.Invalid("shipping currency %s differs from cart currency %s", cmd.Selection.Currency, cmd.Cart.Currency())
	}
	seen := make(map[string]struct{}, len(cmd.Resolution.Allocations))
	for _, a := range cmd.Resolution.Allocations {
		l, ok := cmd.Cart.Line(a.CartLineID)
		if !ok {
			return cart.Invalid("allocation references unknown line %s", a.CartLineID)
		}
		if _, dup := seen[a.CartLineID]; dup {
			return cart.Invalid("line %s has more than one allocation", a.CartLineID)
		}
		seen[a.CartLineID] = struct{}{}
		if a.PromotionID == "" || a.Amount <= 0 || a.Amount > l.Subtotal() {
			return cart.Invalid("allocation for line %s must be between 0 and the line subtotal", a.CartLineID)
		}
	}
	for m, tax := range cmd.TaxByMerchant {
		if tax < 0 {
			return cart.Invalid("tax for merchant %s must be zero or greater", m)
		}
	}
	return nil
}

func (uc *CreateOrdersUseCase) publish(ctx context.Context, events []domoutbox.Event) error {
	if uc.publisher == nil {
		return nil
	}
	var errs []error
	for _, e := range events {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		start := time.Now()
		err := uc.publisher.Publish(pubCtx, e)
		if err == nil && pubCtx.Err() != nil {
			err = pubCtx.Err()
		}
		cancel()
		uc.in.External(publishPeer, e.EventName(), start, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.EventName(), err))
		}
	}
	return errors.Join(errs...)
}
