// Package calib provides the default calibration constants of the market model.
// Every tunable has a config field; these are the values used when the field is omitted.
package calib

// Rating prior and dynamics, on the conventional TrueSkill scale.
const (
	// RatingMu is the prior mean every agent starts with.
	RatingMu = 25.0

	// RatingSigma is the prior uncertainty (mu / 3).
	RatingSigma = RatingMu / 3

	// RatingBeta is the performance noise: half the prior sigma.
	RatingBeta = RatingSigma / 2

	// RatingTau is the additive dynamics factor applied before each update.
	RatingTau = RatingSigma / 100

	// DrawProbability sets the draw margin used for mutual outcomes.
	DrawProbability = 0.10

	// RatingMuFloor keeps means from running away downward.
	RatingMuFloor = 0.0

	// RatingSigmaFloor keeps the system from becoming overconfident.
	RatingSigmaFloor = 0.5
)

// Utility curve. Happiness per match is (attr*compat + UtilityOffset)^UtilityExponent - 1,
// then discounted by UtilityDecay^matches under diminishing returns.
const (
	UtilityOffset   = 2.0
	UtilityExponent = 0.9
	UtilityDecay    = 0.999
)

// Population defaults.
const (
	// LikeAllowance is the number of likes an agent may spend per round.
	LikeAllowance = 10

	// PremiumMultiplier scales the like allowance of premium members.
	PremiumMultiplier = 2

	// PremiumChance and ImpostorChance are the original market's membership mix.
	PremiumChance  = 0.05
	ImpostorChance = 0.1

	// AttractivenessMin and AttractivenessMax bound the default attractiveness scale.
	AttractivenessMin = 1.0
	AttractivenessMax = 5.0
)

// Matchmaking defaults.
const (
	// CandidatesPerRound is k, the number of profiles shown to an agent each round.
	CandidatesPerRound = 10

	// LooseWindow widens the rating window when strict recommendations are off.
	LooseWindow = 1.5
)
