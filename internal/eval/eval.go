package eval

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/SoarinFerret/StreamWarden/internal/session"
)

// Strategy decides which qualifying users are acted upon when more than one
// user has concurrent transcodes.
type Strategy string

const (
	// StrategyLowest acts on the single group holding the globally least
	// complete session. Ties go to the group seen first in the snapshot.
	StrategyLowest Strategy = "lowest"
	// StrategyEach acts on every qualifying group.
	StrategyEach Strategy = "each"
	// StrategyLast acts on the last qualifying group in snapshot order only.
	StrategyLast Strategy = "last"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLowest, StrategyEach, StrategyLast:
		return Strategy(s), nil
	case "":
		return StrategyLowest, nil
	}
	return "", fmt.Errorf("%w %q (want lowest, each or last)", ErrUnknownStrategy, s)
}

// Group is one user's transcoding sessions in snapshot order.
type Group struct {
	Username string
	Sessions []session.Record
}

// Selection is the least complete session of a group and the most complete
// one, used to estimate when the user frees up a stream.
type Selection struct {
	ToKill   session.Record
	ToFinish session.Record
}

// Decision is a termination chosen by the policy.
type Decision struct {
	Username   string
	ToKill     session.Record
	ToFinish   session.Record
	Streams    int
	Qualifying int
}

type Policy struct {
	admins   session.AdminSet
	strategy Strategy
	logger   zerolog.Logger
}

func NewPolicy(admins []string, strategy Strategy, logger zerolog.Logger) *Policy {
	if strategy == "" {
		strategy = StrategyLowest
	}
	return &Policy{
		admins:   session.NewAdminSet(admins),
		strategy: strategy,
		logger:   logger,
	}
}

func (p *Policy) Strategy() Strategy {
	return p.strategy
}

func (p *Policy) IsAdmin(username string) bool {
	return p.admins.Contains(username)
}

// AdminBuffering reports whether any admin stream in the snapshot is buffering.
func (p *Policy) AdminBuffering(entries []session.Entry) bool {
	for i := range entries {
		if entries[i].IsBuffering() && p.IsAdmin(entries[i].Username()) {
			return true
		}
	}
	return false
}

// Group partitions the non-admin transcoding sessions by username. Groups are
// ordered by the first appearance of their user in the snapshot.
func (p *Policy) Group(entries []session.Entry) []Group {
	var groups []Group
	index := make(map[string]int)

	for i := range entries {
		entry := &entries[i]
		if !entry.IsTranscoding() {
			continue
		}
		username := entry.Username()
		if p.IsAdmin(username) {
			continue
		}

		rec, ok := entry.Record(p.admins)
		if !ok {
			p.logger.Warn().
				Str("session_key", entry.SessionKey).
				Str("username", username).
				Int64("duration", entry.Duration).
				Msg("session has no usable duration, treating as 0% complete")
		}

		idx, exists := index[username]
		if !exists {
			idx = len(groups)
			index[username] = idx
			groups = append(groups, Group{Username: username})
		}
		groups[idx].Sessions = append(groups[idx].Sessions, rec)
	}

	return groups
}

// Filter keeps only users with more than one concurrent transcode.
func Filter(groups []Group) []Group {
	var qualifying []Group
	for _, g := range groups {
		if len(g.Sessions) > 1 {
			qualifying = append(qualifying, g)
		}
	}
	return qualifying
}

// Select picks the least and most complete sessions of a group. The first
// occurrence wins on ties. ok is false for an empty group.
func Select(g Group) (sel Selection, ok bool) {
	if len(g.Sessions) == 0 {
		return Selection{}, false
	}
	sel.ToKill = g.Sessions[0]
	sel.ToFinish = g.Sessions[0]
	for _, rec := range g.Sessions[1:] {
		if rec.PercentComplete < sel.ToKill.PercentComplete {
			sel.ToKill = rec
		}
		if rec.PercentComplete > sel.ToFinish.PercentComplete {
			sel.ToFinish = rec
		}
	}
	return sel, true
}

// Decide runs the whole policy over a snapshot. An empty result means no
// session should be terminated.
func (p *Policy) Decide(entries []session.Entry) []Decision {
	qualifying := Filter(p.Group(entries))
	if len(qualifying) == 0 {
		return nil
	}

	decisions := make([]Decision, 0, len(qualifying))
	for _, g := range qualifying {
		sel, ok := Select(g)
		if !ok {
			continue
		}
		decisions = append(decisions, Decision{
			Username:   g.Username,
			ToKill:     sel.ToKill,
			ToFinish:   sel.ToFinish,
			Streams:    len(g.Sessions),
			Qualifying: len(qualifying),
		})
	}

	switch p.strategy {
	case StrategyEach:
		return decisions
	case StrategyLast:
		return decisions[len(decisions)-1:]
	default:
		lowest := 0
		for i, d := range decisions {
			if d.ToKill.PercentComplete < decisions[lowest].ToKill.PercentComplete {
				lowest = i
			}
		}
		return decisions[lowest : lowest+1]
	}
}
