// Package engine provides the round-based market simulation: matchmaking,
// like/pass decisions, match resolution, rating updates and utility accrual.
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/config"
	"github.com/talgya/matchsim/internal/entropy"
	"github.com/talgya/matchsim/internal/logging"
	"github.com/talgya/matchsim/internal/matchmaking"
	"github.com/talgya/matchsim/internal/rating"
	"github.com/talgya/matchsim/internal/strategy"
)

// Simulation holds the complete market state and wires the systems together.
type Simulation struct {
	RunID string

	// Round is the number of completed rounds.
	Round int

	Agents     []*agents.Agent // ascending id
	AgentIndex map[agents.AgentID]*agents.Agent
	Schema     *agents.Schema
	Ratings    *rating.Table[agents.AgentID]
	Matchmaker matchmaking.Matchmaker
	Utility    *UtilityModel
	Topology   matchmaking.Topology

	// Matches holds every shown pair in round, then pair, order.
	Matches []Match
	Stats   []RoundStats

	// OnRound, when set, observes each finished round before Step returns.
	OnRound func(s *Simulation, stats RoundStats)

	cfg     config.Config
	streams *entropy.Streams
	phase   Phase
	err     error
}

// New runs the Initializing phase: validate cfg, spawn the population, bind
// strategies and seed the ratings. Any failure leaves no simulation behind.
func New(ctx context.Context, cfg config.Config) (*Simulation, error) {
	schema, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	streams := entropy.New(cfg.Seed)
	assigner, err := strategy.NewAssigner(cfg.Strategies, schema)
	if err != nil {
		return nil, err
	}
	spawner, err := agents.NewSpawner(cfg.Population, schema, streams)
	if err != nil {
		return nil, err
	}
	population, err := spawner.SpawnPopulation(assigner)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to spawn population")
	}

	model, err := rating.NewModel(cfg.Rating)
	if err != nil {
		return nil, err
	}
	table := rating.NewTable[agents.AgentID](model)

	mm, err := matchmaking.New(cfg.Matchmaking)
	if err != nil {
		return nil, err
	}

	index := make(map[agents.AgentID]*agents.Agent, len(population))
	for _, a := range population {
		index[a.ID] = a
		table.Register(a.ID)
	}

	s := &Simulation{
		RunID:      uuid.NewString(),
		Agents:     population,
		AgentIndex: index,
		Schema:     schema,
		Ratings:    table,
		Matchmaker: mm,
		Utility:    NewUtilityModel(cfg.Utility, schema),
		Topology:   matchmaking.Heterosexual{},
		cfg:        cfg,
		streams:    streams,
		phase:      PhaseRoundInProgress,
	}

	logging.From(ctx).Info("simulation initialized",
		"run_id", s.RunID,
		"seed", cfg.Seed,
		"agents", len(population),
		"rounds", cfg.Rounds,
		"matchmaker", mm.Name(),
		"workers", cfg.Workers,
	)
	return s, nil
}

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// Phase returns the lifecycle phase.
func (s *Simulation) Phase() Phase {
	return s.phase
}

// Active returns the agents still in the market, in id order.
func (s *Simulation) Active() []*agents.Agent {
	out := make([]*agents.Agent, 0, len(s.Agents))
	for _, a := range s.Agents {
		if !a.Eliminated {
			out = append(out, a)
		}
	}
	return out
}

// Snapshot is the final, self-contained result of a run.
type Snapshot struct {
	RunID   string        `json:"run_id"`
	Seed    int64         `json:"seed"`
	Rounds  int           `json:"rounds"`
	Groups  []string      `json:"groups"`
	Traits  []string      `json:"traits"`
	Agents  []AgentRecord `json:"agents"`
	Matches []Match       `json:"matches"`
	Stats   []RoundStats  `json:"stats"`
}

// AgentRecord is one agent's final state.
type AgentRecord struct {
	ID                      agents.AgentID        `json:"id"`
	Group                   string                `json:"group"`
	Strategy                string                `json:"strategy"`
	Premium                 bool                  `json:"premium"`
	Impostor                bool                  `json:"impostor"`
	Eliminated              bool                  `json:"eliminated"`
	EliminatedAt            int                   `json:"eliminated_at,omitempty"`
	Traits                  agents.Traits         `json:"traits"`
	Reported                agents.Traits         `json:"reported"`
	Preferences             []float64             `json:"preferences"`
	Attributes              []int                 `json:"attributes"`
	EstimatedAttractiveness float64               `json:"estimated_attractiveness"`
	Utility                 float64               `json:"utility"`
	Deltas                  []float64             `json:"deltas"`
	MatchCount              int                   `json:"match_count"`
	Rating                  rating.Rating         `json:"rating"`
	History                 []agents.HistoryEntry `json:"history"`
}

func (s *Simulation) snapshot() *Snapshot {
	snap := &Snapshot{
		RunID:   s.RunID,
		Seed:    s.cfg.Seed,
		Rounds:  s.Round,
		Agents:  make([]AgentRecord, 0, len(s.Agents)),
		Matches: append([]Match(nil), s.Matches...),
		Stats:   append([]RoundStats(nil), s.Stats...),
	}
	for _, g := range s.Schema.Groups {
		snap.Groups = append(snap.Groups, g.Name)
	}
	for _, t := range s.Schema.Traits {
		snap.Traits = append(snap.Traits, t.Name)
	}
	for _, a := range s.Agents {
		snap.Agents = append(snap.Agents, AgentRecord{
			ID:                      a.ID,
			Group:                   s.Schema.GroupName(a.Group),
			Strategy:                a.StrategyLabel(),
			Premium:                 a.Premium,
			Impostor:                a.Impostor,
			Eliminated:              a.Eliminated,
			EliminatedAt:            a.EliminatedAt,
			Traits:                  a.TrueTraits(),
			Reported:                a.Reported(),
			Preferences:             a.TruePreferences().Weights,
			Attributes:              append([]int(nil), a.Attributes...),
			EstimatedAttractiveness: a.EstimatedAttractiveness,
			Utility:                 a.Utility(),
			Deltas:                  a.Deltas(),
			MatchCount:              a.MatchCount(),
			Rating:                  s.Ratings.Get(a.ID),
			History:                 a.History(),
		})
	}
	return snap
}
