package trader

import (
	"fmt"
	"math/rand"

	"tradingsim/internal/simmodel"
)

// DefaultPopulation is the synthetic trader count spec §8's cold-start
// scenario expects ("traders.length >= 100"); the source's nominal figure
// is approximately 118.
const DefaultPopulation = 118

var strategies = []simmodel.Strategy{
	simmodel.StrategyScalper,
	simmodel.StrategySwing,
	simmodel.StrategyMomentum,
	simmodel.StrategyContrarian,
}

var sizings = []simmodel.PositionSizing{
	simmodel.SizingConservative,
	simmodel.SizingModerate,
	simmodel.SizingAggressive,
}

// GeneratePopulation builds n synthetic trader profiles with randomly
// assigned strategy/sizing/frequency, each with a unique wallet address
// (spec §3 traders: "unique by walletAddress").
func GeneratePopulation(n int, rng *rand.Rand) []*simmodel.TraderProfile {
	if n <= 0 {
		n = DefaultPopulation
	}
	profiles := make([]*simmodel.TraderProfile, n)
	for i := 0; i < n; i++ {
		strategy := strategies[rng.Intn(len(strategies))]
		sizing := sizings[rng.Intn(len(sizings))]
		profiles[i] = &simmodel.TraderProfile{
			Trader: simmodel.Trader{
				WalletAddress: simmodel.NewWalletAddress(),
				PreferredName: fmt.Sprintf("trader-%d", i+1),
			},
			Strategy:         strategy,
			TradingFrequency: 0.1 + rng.Float64()*0.9,
			PositionSizing:   sizing,
			Risk:             RiskProfileFor(strategy),
		}
	}
	return profiles
}
