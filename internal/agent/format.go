package agent

import (
	"fmt"

	"github.com/edibez/tokenagent/internal/price"
	"github.com/shopspring/decimal"
)

// FormatQuote renders "<Name> (<SYMBOL>)\nCurrent Price: $<price>" with the
// price rounded half away from zero to two decimals. Without a symbol it
// renders "<Name> Current Price: $<price>".
func FormatQuote(q price.Quote) string {
	usd := decimal.NewFromFloat(q.USD).StringFixed(2)
	if q.Token.Symbol == "" {
		return fmt.Sprintf("%s Current Price: $%s", q.Token.Name, usd)
	}
	return fmt.Sprintf("%s (%s)\nCurrent Price: $%s", q.Token.Name, q.Token.Symbol, usd)
}
