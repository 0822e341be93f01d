package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToIncrement(t *testing.T) {
	tick := decimal.RequireFromString("0.01")
	assert.Equal(t, "123.45", roundToIncrement(123.4567, tick))
	assert.Equal(t, "123.45", roundToIncrement(123.45, tick))

	step := decimal.RequireFromString("0.001")
	assert.Equal(t, "0.042", roundToIncrement(0.0429, step))

	// zero increment keeps the value
	assert.Equal(t, "5", roundToIncrement(5, decimal.Zero))
}
