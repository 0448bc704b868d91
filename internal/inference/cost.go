package inference

import "strings"

// pricePerMTok is USD per million tokens, input/output.
type pricePerMTok struct {
	in  float64
	out float64
}

// modelPrices holds rough list prices for cost estimation. Estimation only;
// billing reconciliation happens outside this core.
var modelPrices = map[string]pricePerMTok{
	"claude-3-5-sonnet": {in: 3.00, out: 15.00},
	"claude-3-5-haiku":  {in: 0.80, out: 4.00},
	"gpt-4o":            {in: 2.50, out: 10.00},
	"gpt-4o-mini":       {in: 0.15, out: 0.60},
}

// EstimateCost returns the approximate USD cost of usage for model. The
// longest matching prefix wins, so gpt-4o-mini is not priced as gpt-4o.
// Unknown models cost zero rather than guessing.
func EstimateCost(model string, u Usage) float64 {
	var best string
	for prefix := range modelPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := modelPrices[best]
	return float64(u.InputTokens)/1e6*p.in + float64(u.OutputTokens)/1e6*p.out
}
