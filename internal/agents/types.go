// Package agents provides the agent data model of the dating market: true and
// reported traits, preferences, categorical attributes and the spawner that draws them.
package agents

import (
	"math/rand/v2"
	"slices"

	"github.com/talgya/matchsim/internal/rating"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Group is an index into the configured market groups.
type Group uint8

// Unknown marks an attribute value the viewer cannot see.
const Unknown = -1

// Traits is an ordered vector of numeric trait values, one per schema dimension.
type Traits []float64

// Clone returns an independent copy.
func (t Traits) Clone() Traits {
	return slices.Clone(t)
}

// Preferences weight the trait dimensions an agent cares about.
type Preferences struct {
	Weights []float64 `json:"weights"`
}

// Clone returns an independent copy.
func (p Preferences) Clone() Preferences {
	return Preferences{Weights: slices.Clone(p.Weights)}
}

// Score rates t in [0, 1]: the weighted mean of its normalized dimensions.
func (p Preferences) Score(s *Schema, t Traits) float64 {
	var sum, total float64
	for i, w := range p.Weights {
		if i >= len(t) {
			break
		}
		sum += w * s.Normalize(i, t[i])
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// HistoryEntry records one shown pair from the agent's side.
type HistoryEntry struct {
	Round   int     `json:"round"`
	Partner AgentID `json:"partner"`
	Liked   bool    `json:"liked"`
	LikedBy bool    `json:"liked_by"`
	Matched bool    `json:"matched"`
}

// CandidateView is what an agent sees of someone it is shown: reported traits,
// observable attributes and the candidate's current rating.
type CandidateView struct {
	ID         AgentID
	Group      Group
	Traits     Traits
	Attributes []int
	Rating     rating.Rating
}

// Decision carries everything a liking strategy may consult for one candidate.
type Decision struct {
	Self       *Agent
	SelfRating rating.Rating
	Candidate  CandidateView
	Schema     *Schema
	Rand       *rand.Rand

	// PremiumMultiplier is the like allowance scale of premium members.
	PremiumMultiplier int
}

// LikingStrategy decides like or pass. NewRound and Matched let stateful
// strategies observe the agent's own timeline; they are only ever called for the
// agent the strategy is bound to.
type LikingStrategy interface {
	Name() string
	DecideLike(d Decision) bool
	NewRound(self *Agent)
	Matched(self, partner *Agent)
}

// MisrepresentationStrategy derives reported traits from true traits. It must be
// a pure function of its input and its own parameters.
type MisrepresentationStrategy interface {
	Name() string
	Misrepresent(truth Traits) Traits
}

// Agent is one market participant.
type Agent struct {
	ID    AgentID `json:"id"`
	Group Group   `json:"group"`

	traits   Traits
	prefs    Preferences
	reported Traits
	repPrefs Preferences

	// Attributes holds the categorical attribute values, observable and hidden.
	Attributes []int `json:"attributes"`

	// EstimatedAttractiveness is the agent's noisy belief about its own attractiveness.
	EstimatedAttractiveness float64 `json:"estimated_attractiveness"`

	Premium       bool `json:"premium"`
	Impostor      bool `json:"impostor"`
	LikeAllowance int  `json:"like_allowance"`

	Liking LikingStrategy            `json:"-"`
	Misrep MisrepresentationStrategy `json:"-"`

	// Utility accounting, written only through Accrue.
	utility    float64
	deltas     []float64
	matchCount int

	history   []HistoryEntry
	matched   map[AgentID]bool
	lastShown map[AgentID]int

	Eliminated   bool `json:"eliminated"`
	EliminatedAt int  `json:"eliminated_at,omitempty"`
}

// NewAgent builds an agent from its drawn state. Reported traits start equal to
// the true ones until Report is called.
func NewAgent(id AgentID, g Group, traits Traits, prefs Preferences, attrs []int) *Agent {
	return &Agent{
		ID:         id,
		Group:      g,
		traits:     traits.Clone(),
		prefs:      prefs.Clone(),
		reported:   traits.Clone(),
		repPrefs:   prefs.Clone(),
		Attributes: slices.Clone(attrs),
		matched:    make(map[AgentID]bool),
		lastShown:  make(map[AgentID]int),
	}
}

// TrueTraits returns a copy of the ground-truth traits.
func (a *Agent) TrueTraits() Traits {
	return a.traits.Clone()
}

// TruePreferences returns a copy of the ground-truth preferences.
func (a *Agent) TruePreferences() Preferences {
	return a.prefs.Clone()
}

// Score rates t with the agent's true preferences.
func (a *Agent) Score(s *Schema, t Traits) float64 {
	return a.prefs.Score(s, t)
}

// Reported returns a copy of the traits others see.
func (a *Agent) Reported() Traits {
	return a.reported.Clone()
}

// ReportedPreferences returns a copy of the preferences others see.
func (a *Agent) ReportedPreferences() Preferences {
	return a.repPrefs.Clone()
}

// Report refreshes the reported traits through the agent's own misrepresentation
// strategy. It is the only writer of the reported slot.
func (a *Agent) Report(s *Schema) {
	if a.Misrep == nil {
		a.reported = a.traits.Clone()
		return
	}
	a.reported = s.Clamp(a.Misrep.Misrepresent(a.traits.Clone()))
}

// View returns what a viewer sees of a: reported traits, observable attributes only.
func (a *Agent) View(s *Schema, r rating.Rating) CandidateView {
	attrs := make([]int, len(a.Attributes))
	for i, v := range a.Attributes {
		if i < len(s.Attributes) && !s.Attributes[i].Observable {
			attrs[i] = Unknown
			continue
		}
		attrs[i] = v
	}
	return CandidateView{
		ID:         a.ID,
		Group:      a.Group,
		Traits:     a.reported.Clone(),
		Attributes: attrs,
		Rating:     r,
	}
}

// StrategyLabel names the liking/misrepresentation pair the agent runs.
func (a *Agent) StrategyLabel() string {
	l, m := "none", "honest"
	if a.Liking != nil {
		l = a.Liking.Name()
	}
	if a.Misrep != nil {
		m = a.Misrep.Name()
	}
	return l + "/" + m
}

// Accrue appends a round's utility delta.
func (a *Agent) Accrue(delta float64) {
	a.utility += delta
	a.deltas = append(a.deltas, delta)
}

// Utility returns the cumulative happiness.
func (a *Agent) Utility() float64 {
	return a.utility
}

// Deltas returns a copy of the per-round utility deltas.
func (a *Agent) Deltas() []float64 {
	return slices.Clone(a.deltas)
}

// MatchCount returns the number of matches so far.
func (a *Agent) MatchCount() int {
	return a.matchCount
}

// History returns a copy of the agent's shown-pair history.
func (a *Agent) History() []HistoryEntry {
	return slices.Clone(a.history)
}

// HasMatched reports whether a has already matched other.
func (a *Agent) HasMatched(other AgentID) bool {
	return a.matched[other]
}

// LastShown returns the last round other was shown alongside a.
func (a *Agent) LastShown(other AgentID) (int, bool) {
	r, ok := a.lastShown[other]
	return r, ok
}

// Record appends a shown pair outcome and updates the eligibility bookkeeping.
func (a *Agent) Record(e HistoryEntry) {
	a.history = append(a.history, e)
	a.lastShown[e.Partner] = e.Round
	if e.Matched {
		a.matched[e.Partner] = true
		a.matchCount++
	}
}

// Eliminate removes a from the market from the given round on.
func (a *Agent) Eliminate(round int) {
	if a.Eliminated {
		return
	}
	a.Eliminated = true
	a.EliminatedAt = round
}
