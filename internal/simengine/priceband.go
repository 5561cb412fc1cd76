package simengine

import (
	"math/rand"

	"tradingsim/internal/simmodel"
)

// priceBand is the nominal [low, high) price band used to pick an
// initial dynamic price when the caller did not supply customPrice
// (spec §8 scenario 1: priceRange "mid" -> currentPrice in [1,10]).
type priceBand struct{ lo, hi float64 }

var priceBands = map[simmodel.PriceRange]priceBand{
	simmodel.PriceRangeMicro: {0.000001, 0.01},
	simmodel.PriceRangeSmall: {0.01, 1},
	simmodel.PriceRangeMid:   {1, 10},
	simmodel.PriceRangeLarge: {10, 100},
	simmodel.PriceRangeMega:  {100, 100000},
}

var priceRangeOrder = []simmodel.PriceRange{
	simmodel.PriceRangeMicro,
	simmodel.PriceRangeSmall,
	simmodel.PriceRangeMid,
	simmodel.PriceRangeLarge,
	simmodel.PriceRangeMega,
}

// resolveInitialPrice implements spec §3's parameters.priceRange/
// customPrice precedence: a positive customPrice wins when useCustomPrice
// is set; otherwise a value is drawn from the selected (or randomly
// chosen) price band.
func resolveInitialPrice(params simmodel.Parameters, rng *rand.Rand) float64 {
	if params.UseCustomPrice && params.CustomPrice > 0 {
		return params.CustomPrice
	}
	pr := params.PriceRange
	if pr == "" || pr == simmodel.PriceRangeRandom {
		pr = priceRangeOrder[rng.Intn(len(priceRangeOrder))]
	}
	band, ok := priceBands[pr]
	if !ok {
		band = priceBands[simmodel.PriceRangeMid]
	}
	return band.lo + rng.Float64()*(band.hi-band.lo)
}

// priceCategoryFor classifies a price into the same bands, used for the
// external-trade impact adjustment table (spec §4.G).
func priceCategoryFor(price float64) simmodel.PriceRange {
	for _, pr := range priceRangeOrder {
		b := priceBands[pr]
		if price >= b.lo && price < b.hi {
			return pr
		}
	}
	return simmodel.PriceRangeMid
}
