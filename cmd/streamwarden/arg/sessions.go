package arg

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/StreamWarden/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"s", "status"},
	Short:   "List the sessions currently active on the server",
	Long:    `Display every active session with its progress, time left and whether it is transcoding or belongs to an admin`,
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := collectAdmins(cmd, args); err != nil {
			return err
		}

		cfg, _, client, err := setup(false)
		if err != nil {
			return err
		}

		entries, err := client.Sessions(cmd.Context())
		if err != nil {
			return err
		}

		printSessions(cmd.OutOrStdout(), entries, session.NewAdminSet(cfg.Policy.Admins))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func printSessions(out io.Writer, entries []session.Entry, admins session.AdminSet) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No active sessions")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tUSER\tTRANSCODE\tADMIN\tPROGRESS\tLEFT\tSTATE\tTITLE")
	for i := range entries {
		rec, _ := entries[i].Record(admins)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%dm\t%s\t%s\n",
			rec.SessionKey,
			rec.Username,
			yesNo(rec.Transcoding),
			yesNo(rec.Admin),
			rec.PercentComplete,
			rec.MinutesRemaining,
			entries[i].PlayerState,
			rec.Title,
		)
	}
	w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
