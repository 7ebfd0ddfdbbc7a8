package arg

import (
	"github.com/spf13/cobra"

	"github.com/SoarinFerret/StreamWarden/internal/engine"
	"github.com/SoarinFerret/StreamWarden/internal/notify"
)

var killCmd = &cobra.Command{
	Use:     "kill",
	Aliases: []string{"k"},
	Short:   "Stop the least complete concurrent transcode of a user",
	Long: `Fetch the current sessions once and, for users with more than one concurrent
transcode, stop the least complete stream. The reason shown to the user is
printed before the stream is stopped, followed by a confirmation line.`,
	Args: cobra.ArbitraryArgs,
	RunE: runKill,
}

func init() {
	addKillFlags(killCmd)
	rootCmd.AddCommand(killCmd)
}

func addKillFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&strategy, "strategy", "", "Which users to act on when several qualify: lowest, each or last.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the reason but do not stop any stream.")
	cmd.Flags().BoolVar(&noRecheck, "no-recheck", false, "Stop the chosen session without re-reading the session list first.")
}

func runKill(cmd *cobra.Command, args []string) error {
	if err := collectAdmins(cmd, args); err != nil {
		return err
	}

	cfg, logger, client, err := setup(true)
	if err != nil {
		return err
	}

	e, err := engine.NewEngine(client, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if cfg.Notify.Desktop {
		e.SetNotifier(notify.New(cfg.Notify.BusAddress))
	}

	result, err := e.Run(cmd.Context())
	if err != nil {
		return err
	}

	logger.Debug().
		Int("decisions", len(result.Decisions)).
		Int("terminations", len(result.Terminations)).
		Msg("run complete")
	return nil
}
