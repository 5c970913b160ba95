package httppresentation

import (
	"errors"
	"net/http"

	appinventory "github.com/Zhima-Mochi/minishop-settlement/internal/application/inventory"
	apppromo "github.com/Zhima-Mochi/minishop-settlement/internal/application/promotion"
	"github.com/Zhima-Mochi/minishop-settlement/internal/domain/cart"
	dominventory "github.com/Zhima-Mochi/minishop-settlement/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-settlement/internal/domain/payment"
	dompromo "github.com/Zhima-Mochi/minishop-settlement/internal/domain/promotion"
	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
)

const (
	kindValidation         = "validation_error"
	kindNotFound           = "not_found"
	kindNotEligible        = "not_eligible"
	kindCodeNotFound       = "code_not_found"
	kindUnshippable        = "unshippable"
	kindMerchantUnquoted   = "merchant_unquoted"
	kindNoValidOption      = "no_valid_shipping_option"
	kindInvalidSelection   = "invalid_shipping_selection"
	kindInsufficientStock  = "insufficient_stock"
	kindTransactionAborted = "transaction_aborted"
	kindInvalidTransition  = "invalid_state_transition"
	kindOnHold             = "on_hold"
	kindConflict           = "conflict"
	kindUnavailable        = "upstream_unavailable"
	kindInternal           = "internal"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Lines   []blockedDTO   `json:"lines,omitempty"`
	Stock   *shortageDTO   `json:"stock,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type blockedDTO struct {
	CartLineID string `json:"cart_line_id"`
	MerchantID string `json:"merchant_id,omitempty"`
	Reason     string `json:"reason"`
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// writeDomainError maps the settlement error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	body := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		unshippable *domship.UnshippableError
		unquoted    *domship.UnquotedError
		short       *dominventory.InsufficientStockError
		notElig     *dompromo.NotEligibleError
	)
	switch {
	case errors.As(err, &unshippable):
		status, body.Kind = http.StatusUnprocessableEntity, kindUnshippable
		for _, l := range unshippable.Lines {
			body.Lines = append(body.Lines, blockedDTO{CartLineID: l.CartLineID, MerchantID: l.MerchantID, Reason: l.Reason})
		}
	case errors.As(err, &unquoted):
		status, body.Kind = http.StatusUnprocessableEntity, kindMerchantUnquoted
	case errors.Is(err, domship.ErrNoValidShippingOption):
		status, body.Kind = http.StatusUnprocessableEntity, kindNoValidOption
	case errors.As(err, &short):
		status, body.Kind = http.StatusConflict, kindInsufficientStock
		body.Stock = &shortageDTO{LineID: short.LineID, Requested: short.Requested, Available: short.Available}
	case errors.Is(err, dompromo.ErrUsageLimitReached), errors.Is(err, domorder.ErrTransactionAborted):
		status, body.Kind = http.StatusConflict, kindTransactionAborted
	case errors.As(err, &notElig):
		status, body.Kind = http.StatusUnprocessableEntity, kindNotEligible
		body.Error = notElig.Message()
	case errors.Is(err, dompromo.ErrCodeNotFound):
		status, body.Kind = http.StatusUnprocessableEntity, kindCodeNotFound
	case errors.Is(err, domship.ErrInvalidSelection):
		status, body.Kind = http.StatusBadRequest, kindInvalidSelection
	case errors.Is(err, domship.ErrRatesUnavailable),
		errors.Is(err, domship.ErrCatalogUnavailable),
		errors.Is(err, apppromo.ErrRulesUnavailable),
		errors.Is(err, appinventory.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		status, body.Kind = http.StatusServiceUnavailable, kindUnavailable
	case errors.Is(err, domorder.ErrOnHold):
		status, body.Kind = http.StatusConflict, kindOnHold
	case errors.Is(err, domorder.ErrInvalidStateTransition):
		status, body.Kind = http.StatusConflict, kindInvalidTransition
	case errors.Is(err, domorder.ErrConflict), errors.Is(err, dompay.ErrNothingToPay):
		status, body.Kind = http.StatusConflict, kindConflict
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dompay.ErrSessionNotFound),
		errors.Is(err, dominventory.ErrNotFound):
		status, body.Kind = http.StatusNotFound, kindNotFound
	case errors.Is(err, cart.ErrValidation),
		errors.Is(err, domorder.ErrHoldReasonRequired),
		errors.Is(err, domorder.ErrInvalidWorkflowStatus),
		errors.Is(err, domorder.ErrInvalidAmount),
		errors.Is(err, dompay.ErrMixedCurrency):
		status, body.Kind = http.StatusBadRequest, kindValidation
	default:
		body.Kind = kindInternal
	}
	writeJSON(w, status, body)
}
