package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/SoarinFerret/StreamWarden/internal/config"
	"github.com/SoarinFerret/StreamWarden/internal/eval"
	"github.com/SoarinFerret/StreamWarden/internal/session"
)

// SessionSource supplies the current session snapshot.
type SessionSource interface {
	Sessions(ctx context.Context) ([]session.Entry, error)
}

// Terminator stops a session, showing reason to its user.
type Terminator interface {
	Terminate(ctx context.Context, sessionID, reason string) error
}

type Client interface {
	SessionSource
	Terminator
}

// Notifier is told about every stream that was stopped.
type Notifier interface {
	Notify(summary, body string) error
}

// Termination is the outcome of acting on one Decision.
type Termination struct {
	Decision eval.Decision
	Message  string
	Username string
	Title    string
	Found    bool
	Stopped  bool
}

type Result struct {
	Decisions    []eval.Decision
	Terminations []Termination
}

// Engine applies the termination policy to the sessions of a media server.
type Engine struct {
	client   Client
	policy   *eval.Policy
	config   *config.Config
	reason   *template.Template
	logger   zerolog.Logger
	out      io.Writer
	notifier Notifier
}

// NewEngine creates an engine. Messages and confirmations are written to out
// (stdout when nil); diagnostics go to logger.
func NewEngine(client Client, cfg *config.Config, logger zerolog.Logger, out io.Writer) (*Engine, error) {
	strategy, err := eval.ParseStrategy(cfg.Policy.Strategy)
	if err != nil {
		return nil, err
	}
	reason, err := parseReason(cfg.Policy.Reason)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	return &Engine{
		client: client,
		policy: eval.NewPolicy(cfg.Policy.Admins, strategy, logger),
		config: cfg,
		reason: reason,
		logger: logger,
		out:    out,
	}, nil
}

func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Run fetches one snapshot and acts on it.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	entries, err := e.client.Sessions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch sessions: %w", err)
	}
	return e.Evaluate(ctx, entries)
}

// Evaluate decides on the given snapshot, prints the reason for every
// decision and stops the chosen sessions.
func (e *Engine) Evaluate(ctx context.Context, entries []session.Entry) (Result, error) {
	decisions := e.policy.Decide(entries)
	result := Result{Decisions: decisions}
	if len(decisions) == 0 {
		e.logger.Debug().Int("sessions", len(entries)).Msg("no user has concurrent transcodes")
		return result, nil
	}

	for _, d := range decisions {
		message, err := composeReason(e.reason, e.config.Policy.AdminLabel, d)
		if err != nil {
			return result, err
		}
		fmt.Fprintln(e.out, message)

		t, err := e.terminate(ctx, d, message, entries)
		if err != nil {
			return result, err
		}
		result.Terminations = append(result.Terminations, t)
	}

	return result, nil
}

// terminate stops the session chosen by d. With recheck enabled the session
// is looked up in a fresh snapshot and left alone if it has ended since.
func (e *Engine) terminate(ctx context.Context, d eval.Decision, message string, snapshot []session.Entry) (Termination, error) {
	t := Termination{Decision: d, Message: message}

	live := snapshot
	if e.config.Policy.Recheck == nil || *e.config.Policy.Recheck {
		var err error
		live, err = e.client.Sessions(ctx)
		if err != nil {
			return t, fmt.Errorf("failed to refresh sessions: %w", err)
		}
	}

	entry, ok := session.FindByKey(live, d.ToKill.SessionKey)
	if !ok {
		e.logger.Info().
			Str("session_key", d.ToKill.SessionKey).
			Str("username", d.Username).
			Msg("session ended before it could be terminated")
		return t, nil
	}
	t.Found = true
	t.Username = entry.Username()
	t.Title = entry.DisplayTitle()

	if e.config.Policy.DryRun {
		e.logger.Info().
			Str("session_key", entry.SessionKey).
			Str("username", t.Username).
			Str("title", t.Title).
			Msg("dry run, not terminating")
		return t, nil
	}

	if err := e.client.Terminate(ctx, entry.SessionID, message); err != nil {
		e.logger.Error().Err(err).
			Str("session_key", entry.SessionKey).
			Str("username", t.Username).
			Msg("failed to terminate session")
		return t, nil
	}
	t.Stopped = true

	fmt.Fprintln(e.out, confirmation(t.Username, t.Title))
	e.logger.Info().
		Str("session_key", entry.SessionKey).
		Str("username", t.Username).
		Str("title", t.Title).
		Int("percent_complete", d.ToKill.PercentComplete).
		Msg("terminated stream")

	if e.notifier != nil {
		if err := e.notifier.Notify("Stream terminated", confirmation(t.Username, t.Title)); err != nil {
			e.logger.Warn().Err(err).Msg("failed to send notification")
		}
	}

	return t, nil
}

// Watch polls the server every watch interval until ctx is cancelled. When
// require_buffering is set the policy only runs while an admin stream is
// buffering.
func (e *Engine) Watch(ctx context.Context) error {
	interval := e.config.Watch.Interval.Std()
	if interval <= 0 {
		return fmt.Errorf("invalid watch interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().
		Dur("interval", interval).
		Str("strategy", string(e.policy.Strategy())).
		Strs("admins", e.config.Policy.Admins).
		Msg("watching sessions")

	// Run immediately on start
	e.checkSessions(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("watcher shutting down")
			return nil
		case <-ticker.C:
			e.checkSessions(ctx)
		}
	}
}

func (e *Engine) checkSessions(ctx context.Context) {
	entries, err := e.client.Sessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("failed to fetch sessions")
		}
		return
	}

	requireBuffering := e.config.Watch.RequireBuffering == nil || *e.config.Watch.RequireBuffering
	if requireBuffering && !e.policy.AdminBuffering(entries) {
		e.logger.Debug().Int("sessions", len(entries)).Msg("no admin stream is buffering")
		return
	}

	if _, err := e.Evaluate(ctx, entries); err != nil && ctx.Err() == nil {
		e.logger.Error().Err(err).Msg("failed to apply policy")
	}
}
