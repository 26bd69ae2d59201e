// README: Pricing service computes the delivery fee from road distance.
package pricing

import (
	"math"

	"mealdrop/internal/types"
)

const (
	metersPerMile = 1609.344

	// baseFareCents covers the first mile.
	baseFareCents = 500
	// perMileCents applies to every mile beyond the first.
	perMileCents = 200
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Quote returns the delivery fee for a road distance. Flat minimum for the
// first mile, linear beyond it, rounded half-up to whole cents.
func (s *Service) Quote(distanceMeters int) types.Money {
	miles := float64(distanceMeters) / metersPerMile
	if miles <= 1 {
		return types.USD(baseFareCents)
	}
	cents := (miles-1)*perMileCents + baseFareCents
	return types.USD(roundHalfUp(cents))
}

// roundHalfUp rounds towards positive infinity on exact halves.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
