package detectors

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Sales flag descriptions.
const (
	DescLargeSale       = "sale amount far above average"
	DescRoundNumber     = "round-number entry, possible manual fabrication"
	DescUnknownCustomer = "sale references unknown customer"
)

var (
	hundred        = decimal.NewFromInt(100)
	largeSaleRatio = decimal.NewFromInt(5)
)

// Sales checks sale amounts and the customer reference.
type Sales struct{}

// Name implements Detector.
func (Sales) Name() string { return NameSales }

// Detect implements Detector.
func (Sales) Detect(in *Input) ([]domain.Flag, error) {
	e := in.Event
	if e.Kind != domain.KindSale {
		return nil, nil
	}
	var flags []domain.Flag

	if e.Amount != nil {
		amount := *e.Amount
		avg := decimal.NewFromFloat(in.Profile.AverageSaleAmount)

		if avg.IsPositive() && amount.GreaterThan(avg.Mul(largeSaleRatio)) {
			flags = append(flags, domain.Flag{
				Category:    domain.CategorySales,
				Severity:    domain.SeverityHigh,
				Description: DescLargeSale,
				Confidence:  0.7,
				Evidence: map[string]any{
					"amount":  amount.String(),
					"average": avg.String(),
				},
			})
		}

		if amount.GreaterThan(hundred) && amount.Mod(hundred).IsZero() {
			flags = append(flags, domain.Flag{
				Category:    domain.CategorySales,
				Severity:    domain.SeverityLow,
				Description: DescRoundNumber,
				Confidence:  0.25,
				Evidence:    map[string]any{"amount": amount.String()},
			})
		}
	}

	if e.CustomerID != "" && in.History.CustomerKnown != nil && !*in.History.CustomerKnown {
		flags = append(flags, domain.Flag{
			Category:    domain.CategorySales,
			Severity:    domain.SeverityCritical,
			Description: DescUnknownCustomer,
			Confidence:  1.0,
			Evidence:    map[string]any{"customer_id": e.CustomerID},
		})
	}

	return flags, nil
}
