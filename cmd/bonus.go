package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/chatlabs-hq/agency-ops/internal/automation"
	"github.com/chatlabs-hq/agency-ops/internal/bonus"
	"github.com/chatlabs-hq/agency-ops/internal/chatter"
	"github.com/chatlabs-hq/agency-ops/internal/earnings"
)

var bonusCmd = &cobra.Command{
	Use:   "bonus",
	Short: "Evaluate and inspect bonus rules",
}

// bonusEnv bundles the wired evaluation stack for the bonus subcommands.
type bonusEnv struct {
	pool   *pgxpool.Pool
	rules  *bonus.PostgresRuleStore
	awards *bonus.PostgresAwardStore
	prog   *bonus.PostgresProgressStore
	runner *bonus.Runner
	runlog *automation.RunLog
}

func newBonusEnv(ctx context.Context) (*bonusEnv, error) {
	pool, err := storePool(ctx)
	if err != nil {
		return nil, err
	}

	rules := bonus.NewPostgresRuleStore(pool)
	prog := bonus.NewPostgresProgressStore(pool)
	awards := bonus.NewPostgresAwardStore(pool)
	ledger := earnings.NewPostgresStore(pool)
	directory := chatter.NewPostgresStore(pool)

	engine := bonus.NewEngine(pool, prog, awards, ledger, directory, cfg.Bonus.DefaultCurrency)
	runner := bonus.NewRunner(rules, directory, engine, cfg.Bonus.WorkerFanout, cfg.Bonus.BackfillRate)

	return &bonusEnv{
		pool:   pool,
		rules:  rules,
		awards: awards,
		prog:   prog,
		runner: runner,
		runlog: automation.NewRunLog(pool),
	}, nil
}

func (e *bonusEnv) Close() { e.pool.Close() }

var (
	bonusCompany string
	bonusWorker  string
	bonusRule    string
	bonusAsOf    string
)

// parseAsOf parses the --as-of flag; empty means now.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse --as-of %q", s)
	}
	return t, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var bonusRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate rules for one worker and persist qualifying awards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf, err := parseAsOf(bonusAsOf)
		if err != nil {
			return err
		}

		env, err := newBonusEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.runlog.Start(ctx, automation.TriggerManual, bonusCompany)
		if err != nil {
			return err
		}

		outcomes, err := env.runner.RunRules(ctx, bonus.RunRequest{
			CompanyID: bonusCompany,
			WorkerID:  bonusWorker,
			RuleID:    bonusRule,
			AsOf:      asOf,
		})
		evaluated, awarded, failed := tally(outcomes)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if logErr := env.runlog.Complete(ctx, runID, evaluated, awarded, failed, errMsg); logErr != nil {
			return logErr
		}
		if err != nil {
			return err
		}

		return printJSON(outcomes)
	},
}

var bonusPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Dry-run rule evaluation without locking, awarding or mutating progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf, err := parseAsOf(bonusAsOf)
		if err != nil {
			return err
		}

		env, err := newBonusEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes, err := env.runner.RunRules(ctx, bonus.RunRequest{
			CompanyID: bonusCompany,
			WorkerID:  bonusWorker,
			RuleID:    bonusRule,
			AsOf:      asOf,
			DryRun:    true,
		})
		if err != nil {
			return err
		}

		return printJSON(outcomes)
	},
}

var (
	backfillFrom string
	backfillTo   string
)

var bonusBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-evaluate one worker day by day across a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		from, err := time.Parse("2006-01-02", backfillFrom)
		if err != nil {
			return eris.Wrapf(err, "parse --from %q", backfillFrom)
		}
		to, err := time.Parse("2006-01-02", backfillTo)
		if err != nil {
			return eris.Wrapf(err, "parse --to %q", backfillTo)
		}

		env, err := newBonusEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.runlog.Start(ctx, automation.TriggerBackfill, bonusCompany)
		if err != nil {
			return err
		}

		outcomes, err := env.runner.Backfill(ctx, bonus.BackfillRequest{
			CompanyID: bonusCompany,
			WorkerID:  bonusWorker,
			RuleID:    bonusRule,
			From:      from,
			To:        to,
		})
		evaluated, awarded, failed := tally(outcomes)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if logErr := env.runlog.Complete(ctx, runID, evaluated, awarded, failed, errMsg); logErr != nil {
			return logErr
		}
		if err != nil {
			return err
		}

		fmt.Printf("Backfilled %d evaluations, %d awards\n", evaluated, awarded)
		return nil
	},
}

var awardsLimit int

var bonusAwardsCmd = &cobra.Command{
	Use:   "awards",
	Short: "List issued awards and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newBonusEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := bonus.AwardFilter{
			CompanyID: bonusCompany,
			WorkerID:  bonusWorker,
			RuleID:    bonusRule,
			Limit:     awardsLimit,
		}
		awards, err := env.awards.List(ctx, filter)
		if err != nil {
			return err
		}
		totals, err := env.awards.Totals(ctx, filter)
		if err != nil {
			return err
		}

		return printJSON(map[string]any{
			"awards": awards,
			"totals": totals,
		})
	},
}

var bonusProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "List per-(rule, worker) award progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newBonusEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		progress, err := env.prog.List(ctx, bonusCompany, bonusWorker)
		if err != nil {
			return err
		}

		return printJSON(progress)
	},
}

func tally(outcomes []bonus.RuleOutcome) (evaluated, awarded, failed int) {
	for _, o := range outcomes {
		evaluated++
		if o.Err != nil {
			failed++
			continue
		}
		if o.Snapshot != nil && o.Snapshot.Award != nil {
			awarded++
		}
	}
	return evaluated, awarded, failed
}

func init() {
	bonusCmd.PersistentFlags().StringVar(&bonusCompany, "company", "", "company id (required)")
	bonusCmd.PersistentFlags().StringVar(&bonusWorker, "worker", "", "worker id")
	bonusCmd.PersistentFlags().StringVar(&bonusRule, "rule", "", "restrict to a single rule id")
	bonusCmd.PersistentFlags().StringVar(&bonusAsOf, "as-of", "", "evaluation instant (RFC3339, default now)")

	bonusBackfillCmd.Flags().StringVar(&backfillFrom, "from", "", "first day (YYYY-MM-DD)")
	bonusBackfillCmd.Flags().StringVar(&backfillTo, "to", "", "last day (YYYY-MM-DD)")
	_ = bonusBackfillCmd.MarkFlagRequired("from")
	_ = bonusBackfillCmd.MarkFlagRequired("to")

	bonusAwardsCmd.Flags().IntVar(&awardsLimit, "limit", 100, "max awards to list")

	bonusCmd.AddCommand(bonusRunCmd, bonusPreviewCmd, bonusBackfillCmd, bonusAwardsCmd, bonusProgressCmd)
	rootCmd.AddCommand(bonusCmd)
}
