package accounting

import (
	"fmt"
	"math"
	"time"
)

// CostAmount is a non-negative USD amount with six decimal places,
// stored as an integer count of micro-dollars so addition stays exact.
type CostAmount struct {
	micro int64
}

// ZeroCost is the additive identity.
var ZeroCost = CostAmount{}

// CostFromUSD constructs a CostAmount, rounding half-to-even to six
// decimals. Negative inputs clamp to zero.
func CostFromUSD(usd float64) CostAmount {
	if usd <= 0 || math.IsNaN(usd) {
		return ZeroCost
	}
	return CostAmount{micro: int64(math.RoundToEven(usd * 1e6))}
}

// Add returns the sum of two amounts.
func (c CostAmount) Add(other CostAmount) CostAmount {
	return CostAmount{micro: c.micro + other.micro}
}

// USD returns the amount as a float64 dollar value.
func (c CostAmount) USD() float64 {
	return float64(c.micro) / 1e6
}

// IsZero reports whether the amount is zero.
func (c CostAmount) IsZero() bool {
	return c.micro == 0
}

func (c CostAmount) String() string {
	return fmt.Sprintf("%d.%06d", c.micro/1e6, c.micro%1e6)
}

// Pricing is the per-model rate used to derive request cost.
type Pricing struct {
	Model                 string
	InputPricePerMillion  float64
	OutputPricePerMillion float64
	MaxContext            int
	UpdatedAt             time.Time
}

// Cost computes the estimated cost of a request from exact token counts.
func (p *Pricing) Cost(inputTokens, outputTokens int) CostAmount {
	usd := float64(inputTokens)/1e6*p.InputPricePerMillion +
		float64(outputTokens)/1e6*p.OutputPricePerMillion
	return CostFromUSD(usd)
}
