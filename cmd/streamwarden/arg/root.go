package arg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SoarinFerret/StreamWarden/internal/config"
	"github.com/SoarinFerret/StreamWarden/internal/logging"
	"github.com/SoarinFerret/StreamWarden/internal/plex"
)

var (
	configPath string
	plexURL    string
	plexToken  string
	admins     []string
	logLevel   string

	strategy  string
	dryRun    bool
	noRecheck bool
)

var rootCmd = &cobra.Command{
	Use:   "streamwarden",
	Short: "streamwarden stops a concurrent transcode when an admin stream is buffering",
	Long: `streamwarden looks at the sessions of a Plex server and, for users with more
than one concurrent transcode, stops the least complete one. The stopped user
is told when their most complete stream should finish.

Without a subcommand it behaves like "streamwarden kill", so it can be run
directly from a buffer warning notification script.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runKill,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a TOML config file.")
	flags.StringVar(&plexURL, "plex_url", "", "The URL of your Plex server.")
	flags.StringVar(&plexToken, "plex_token", "", "The token for your Plex server.")
	flags.StringSliceVar(&admins, "admin_usernames", nil, "Admin usernames, comma separated or as the arguments that follow the flag.")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error).")

	addKillFlags(rootCmd)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// collectAdmins treats positional arguments as more admin usernames, so
// "--admin_usernames alice bob" works as it does for notification scripts.
func collectAdmins(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if !cmd.Flags().Changed("admin_usernames") {
		return fmt.Errorf("unexpected arguments %v", args)
	}
	admins = append(admins, args...)
	return nil
}

// loadConfig reads the optional config file and applies the command line
// flags on top of it.
func loadConfig(requireAdmins bool) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if plexURL != "" {
		cfg.Server.URL = plexURL
	}
	if plexToken != "" {
		cfg.Server.Token = plexToken
	}
	if len(admins) > 0 {
		cfg.Policy.Admins = admins
	}
	if strategy != "" {
		cfg.Policy.Strategy = strategy
	}
	if dryRun {
		cfg.Policy.DryRun = true
	}
	if noRecheck {
		recheck := false
		cfg.Policy.Recheck = &recheck
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		if requireAdmins || !errors.Is(err, config.ErrMissingAdmins) {
			return nil, err
		}
	}
	return &cfg, nil
}

func setup(requireAdmins bool) (*config.Config, zerolog.Logger, *plex.Client, error) {
	cfg, err := loadConfig(requireAdmins)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	client, err := plex.NewClient(cfg.Server.URL, cfg.Server.Token, plex.Options{
		Timeout:            cfg.Server.Timeout.Std(),
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify != nil && *cfg.Server.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return nil, logger, nil, err
	}

	return cfg, logger, client, nil
}
