package engine

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/config"
	"github.com/talgya/matchsim/internal/logging"
	"github.com/talgya/matchsim/internal/matchmaking"
	"github.com/talgya/matchsim/internal/simerr"
)

// Phase is the lifecycle state of a simulation.
type Phase uint8

const (
	PhaseInitializing Phase = iota
	PhaseRoundInProgress
	PhaseFinalizing
	PhaseFinished
)

var phaseNames = [...]string{"initializing", "round_in_progress", "finalizing", "finished"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Step runs one round. Context cancellation is honoured before the round starts,
// never inside it. After the last configured round the simulation moves to
// Finalizing and further steps fail with ErrFinished.
func (s *Simulation) Step(ctx context.Context) (RoundStats, error) {
	if s.err != nil {
		return RoundStats{}, s.err
	}
	if s.phase != PhaseRoundInProgress {
		return RoundStats{}, goerr.Wrap(simerr.ErrFinished, "no rounds left", goerr.V("phase", s.phase.String()))
	}
	if err := ctx.Err(); err != nil {
		return RoundStats{}, goerr.Wrap(err, "simulation interrupted", goerr.V("round", s.Round))
	}

	start := time.Now()
	stats, err := s.round(ctx, s.Round+1)
	if err != nil {
		s.err = goerr.Wrap(err, "round failed", goerr.V("round", s.Round+1))
		s.phase = PhaseFinished
		return RoundStats{}, s.err
	}

	s.Round++
	s.Stats = append(s.Stats, stats)
	if s.Round >= s.cfg.Rounds {
		s.phase = PhaseFinalizing
	}

	logging.From(ctx).Debug("round finished",
		"round", stats.Round,
		"active", stats.Active,
		"shown", stats.Shown,
		"likes", stats.Likes,
		"matches", stats.Matches,
		"match_rate", stats.MatchRate,
		"elapsed", time.Since(start),
	)
	if s.OnRound != nil {
		s.OnRound(s, stats)
	}
	return stats, nil
}

// Run steps through every remaining round and finalizes.
func (s *Simulation) Run(ctx context.Context) (*Snapshot, error) {
	for s.phase == PhaseRoundInProgress {
		if _, err := s.Step(ctx); err != nil {
			return nil, err
		}
	}
	return s.Finalize(ctx)
}

// Finalize ends the run and returns its snapshot. It may be called early, ending
// the run after the rounds completed so far. A failed run has no snapshot.
func (s *Simulation) Finalize(ctx context.Context) (*Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.phase == PhaseFinished {
		return nil, goerr.Wrap(simerr.ErrFinished, "simulation already finalized")
	}

	s.phase = PhaseFinalizing
	snap := s.snapshot()
	s.phase = PhaseFinished

	logging.From(ctx).Info("simulation finalized",
		"run_id", s.RunID,
		"rounds", s.Round,
		"matches", matchedCount(s.Matches),
		"shown_pairs", len(s.Matches),
	)
	return snap, nil
}

// round is the body of one Step: refresh reports, collect candidates and
// decisions in parallel, then apply outcomes serially in pair order.
func (s *Simulation) round(ctx context.Context, round int) (RoundStats, error) {
	active := s.Active()
	for _, a := range active {
		if s.cfg.Reporting == config.ReportPerRound {
			a.Report(s.Schema)
		}
		if a.Liking != nil {
			a.Liking.NewRound(a)
		}
	}

	pool := &matchmaking.Pool{
		Agents:      s.Agents,
		Ratings:     s.Ratings.Snapshot(),
		Schema:      s.Schema,
		Round:       round,
		ReshowAfter: s.cfg.Matchmaking.ReshowAfter,
		Topology:    s.Topology,
	}

	candidates, err := s.collectCandidates(pool, active)
	if err != nil {
		return RoundStats{}, err
	}
	pairs, incoming := showPairs(active, candidates)

	decisions, err := s.collectDecisions(pool, active, candidates, incoming)
	if err != nil {
		return RoundStats{}, err
	}

	matches := resolveRound(round, pairs, decisions)
	deltas, err := s.apply(active, matches)
	if err != nil {
		return RoundStats{}, err
	}
	s.Matches = append(s.Matches, matches...)

	stats := s.roundStats(round, active, matches, deltas)
	if eliminated := s.eliminate(round); len(eliminated) > 0 {
		stats.Eliminated = eliminated
		logging.From(ctx).Info("agents eliminated",
			"round", round,
			"count", len(eliminated),
			"by", s.cfg.Elimination.By,
		)
	}
	return stats, nil
}

func matchedCount(ms []Match) int {
	n := 0
	for _, m := range ms {
		if m.Matched {
			n++
		}
	}
	return n
}
