package shipping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionCovers(t *testing.T) {
	s := Selection{ServiceName: "standard", PerMerchantPrice: map[string]int64{"m1": 500, "m2": 700}}
	assert.NoError(t, s.Covers([]string{"m1", "m2"}))
	assert.ErrorIs(t, s.Covers([]string{"m1", "m2", "m3"}), ErrInvalidSelection)
	assert.ErrorIs(t, s.Covers([]string{"m1"}), ErrInvalidSelection)
	assert.ErrorIs(t, Selection{}.Covers(nil), ErrInvalidSelection)
}

func TestProfileCovers(t *testing.T) {
	p := &Profile{Countries: []string{"DE", "fr"}}
	assert.True(t, p.Covers("FR"))
	assert.False(t, p.Covers("US"))
	assert.True(t, (&Profile{Countries: []string{"*"}}).Covers("JP"))
	var none *Profile
	assert.False(t, none.Covers("DE"))
}

func TestErrorsNameTheirSubjects(t *testing.T) {
	err := &UnshippableError{Country: "US", Lines: []BlockedLine{{CartLineID: "B", Reason: "product cannot ship to US"}}}
	assert.True(t, errors.Is(err, ErrUnshippable))
	assert.Contains(t, err.Error(), "B (product cannot ship to US)")

	uq := &UnquotedError{Country: "US", Merchants: []string{"m2", "m1"}}
	assert.True(t, errors.Is(uq, ErrMerchantUnquoted))
	assert.False(t, errors.Is(uq, ErrUnshippable))
	assert.Contains(t, uq.Error(), "m1, m2")
}
