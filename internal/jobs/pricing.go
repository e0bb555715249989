package jobs

import (
	"context"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// WordsPerMinute is the fixed narration reading speed used for estimates.
const WordsPerMinute = 250

// EstimateDurationMinutes returns the narration length of wordCount words.
func EstimateDurationMinutes(wordCount int) float64 {
	return float64(wordCount) / WordsPerMinute
}

// CalculateCost returns ceil(wordCount / WordsPerMinute * pricePerMinute).
// It is computed on integers so that exact results are never pushed up by
// floating point error.
func CalculateCost(wordCount int, pricePerMinute int64) int64 {
	units := int64(wordCount) * pricePerMinute
	if units <= 0 {
		return 0
	}
	return (units + WordsPerMinute - 1) / WordsPerMinute
}

// Costs is the provisional charge for every service type of a job.
type Costs struct {
	DurationMinutes float64
	Audio           int64
	Video           int64
}

// ComputeCosts prices wordCount against both service types. prices must hold
// a row for each one.
func ComputeCosts(wordCount int, prices map[models.ServiceType]models.AIServicePricing) Costs {
	return Costs{
		DurationMinutes: EstimateDurationMinutes(wordCount),
		Audio:           CalculateCost(wordCount, prices[models.ServiceGenAudio].PricePerMinuteCredits),
		Video:           CalculateCost(wordCount, prices[models.ServiceGenVideo].PricePerMinuteCredits),
	}
}

// PricingResolver looks up per-minute prices. A missing row is a deployment
// defect and fails hard.
type PricingResolver struct{}

func NewPricingResolver() *PricingResolver {
	return &PricingResolver{}
}

// ResolveAll returns a row for every service type in models.ServiceTypes.
func (r *PricingResolver) ResolveAll(ctx context.Context, tx Tx) (map[models.ServiceType]models.AIServicePricing, error) {
	all, err := r.load(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, st := range models.ServiceTypes {
		if _, ok := all[st]; !ok {
			return nil, newError(KindUpstream, CodePricingNotConfigured, "no pricing configured for service type").
				WithContext("service_type", string(st))
		}
	}
	return all, nil
}

func (r *PricingResolver) load(ctx context.Context, tx Tx) (map[models.ServiceType]models.AIServicePricing, error) {
	rows, err := tx.Pricing().List(ctx)
	if err != nil {
		return nil, wrapError(KindInternal, CodeInternal, "failed to load pricing", err)
	}
	if len(rows) == 0 {
		return nil, newError(KindUpstream, CodePricingNotConfigured, "pricing table is empty")
	}

	byType := make(map[models.ServiceType]models.AIServicePricing, len(rows))
	for _, row := range rows {
		if row.PricePerMinuteCredits < 0 {
			return nil, newError(KindUpstream, CodePricingNotConfigured, "negative price configured").
				WithContext("service_type", string(row.ServiceType))
		}
		byType[row.ServiceType] = row
	}
	return byType, nil
}
