package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v3"

	"github.com/talgya/matchsim/internal/config"
	"github.com/talgya/matchsim/internal/engine"
	"github.com/talgya/matchsim/internal/logging"
	"github.com/talgya/matchsim/internal/persistence"
)

// options holds the flag values shared by the commands.
type options struct {
	configPath string
	logLevel   string
}

func (o *options) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the YAML run configuration (defaults apply when omitted)",
			Sources:     cli.EnvVars("MATCHSIM_CONFIG"),
			Destination: &o.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level: debug, info, warn or error",
			Value:       "info",
			Sources:     cli.EnvVars("MATCHSIM_LOG_LEVEL"),
			Destination: &o.logLevel,
		},
	}
}

// setup installs the logger and loads the configuration.
func (o *options) setup(ctx context.Context) (context.Context, config.Config, error) {
	logger, err := logging.New(o.logLevel, nil)
	if err != nil {
		return ctx, config.Config{}, err
	}
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	if o.configPath == "" {
		return ctx, config.Default(), nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return ctx, config.Config{}, err
	}
	return ctx, cfg, nil
}

func newApp(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "matchsim",
		Usage:  "Simulate an online-dating market under strategic misrepresentation",
		Writer: w,
		Commands: []*cli.Command{
			runCommand(w),
			validateCommand(w),
		},
	}
}

func runCommand(w io.Writer) *cli.Command {
	var (
		opts       options
		seed       int64
		rounds     int64
		workers    int64
		outPath    string
		dbPath     string
		profileDir string
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "seed",
			Usage:       "Root random seed (overrides the config)",
			Sources:     cli.EnvVars("MATCHSIM_SEED"),
			Destination: &seed,
		},
		&cli.IntFlag{
			Name:        "rounds",
			Usage:       "Number of rounds (overrides the config)",
			Sources:     cli.EnvVars("MATCHSIM_ROUNDS"),
			Destination: &rounds,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Parallel decision workers (overrides the config)",
			Sources:     cli.EnvVars("MATCHSIM_WORKERS"),
			Destination: &workers,
		},
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "Write the snapshot as JSON to this file",
			Sources:     cli.EnvVars("MATCHSIM_OUT"),
			Destination: &outPath,
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Append the snapshot to this SQLite database",
			Sources:     cli.EnvVars("MATCHSIM_DB"),
			Destination: &dbPath,
		},
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "Write a CPU profile of the run into this directory",
			Sources:     cli.EnvVars("MATCHSIM_PROFILE"),
			Destination: &profileDir,
		},
	}
	flags = append(flags, opts.flags()...)

	return &cli.Command{
		Name:  "run",
		Usage: "Run a simulation and emit its snapshot",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			if c.IsSet("seed") {
				cfg.Seed = seed
			}
			if c.IsSet("rounds") {
				cfg.Rounds = int(rounds)
			}
			if c.IsSet("workers") {
				cfg.Workers = int(workers)
			}

			if profileDir != "" {
				defer profile.Start(profile.CPUProfile, profile.ProfilePath(profileDir), profile.Quiet, profile.NoShutdownHook).Stop()
			}

			sim, err := engine.New(ctx, cfg)
			if err != nil {
				return err
			}
			snap, err := sim.Run(ctx)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := writeSnapshot(outPath, snap); err != nil {
					return err
				}
			}
			if dbPath != "" {
				db, err := persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := db.SaveSnapshot(ctx, snap); err != nil {
					return err
				}
			}

			printSummary(w, snap)
			return nil
		},
	}
}

func validateCommand(w io.Writer) *cli.Command {
	var opts options

	return &cli.Command{
		Name:  "validate",
		Usage: "Check a configuration without running it",
		Flags: opts.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			_, cfg, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			schema, err := cfg.Validate()
			if err != nil {
				return err
			}

			agents := 0
			for _, g := range schema.Groups {
				agents += g.Size
			}
			fmt.Fprintf(w, "config ok: %s agents in %d groups, %s rounds, matchmaker %s\n",
				humanize.Comma(int64(agents)), len(schema.Groups), humanize.Comma(int64(cfg.Rounds)), cfg.Matchmaking.Kind)
			return nil
		},
	}
}

func writeSnapshot(path string, snap *engine.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode snapshot")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write snapshot", goerr.V("path", path))
	}
	return nil
}

func printSummary(w io.Writer, snap *engine.Snapshot) {
	shown, matched := len(snap.Matches), 0
	for _, m := range snap.Matches {
		if m.Matched {
			matched++
		}
	}

	fmt.Fprintf(w, "run %s: %s rounds, %s agents\n",
		snap.RunID, humanize.Comma(int64(snap.Rounds)), humanize.Comma(int64(len(snap.Agents))))
	fmt.Fprintf(w, "shown pairs %s, matches %s\n", humanize.Comma(int64(shown)), humanize.Comma(int64(matched)))

	if len(snap.Stats) == 0 {
		return
	}
	last := snap.Stats[len(snap.Stats)-1]
	for _, k := range slices.Sorted(maps.Keys(last.AvgUtilityByStrategy)) {
		fmt.Fprintf(w, "  %-32s avg utility %s\n", k, humanize.FormatFloat("#,###.###", last.AvgUtilityByStrategy[k]))
	}
}
