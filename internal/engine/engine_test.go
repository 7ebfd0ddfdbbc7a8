package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/StreamWarden/internal/config"
	"github.com/SoarinFerret/StreamWarden/internal/session"
)

const movieLength = 6000000 // 100 minutes in ms

type terminateCall struct {
	sessionID string
	reason    string
}

// fakeClient returns snapshots in order and repeats the last one.
type fakeClient struct {
	mu           sync.Mutex
	snapshots    [][]session.Entry
	fetches      int
	sessionsErr  error
	terminateErr error
	terminated   []terminateCall
}

func (f *fakeClient) Sessions(ctx context.Context) ([]session.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.sessionsErr != nil {
		return nil, f.sessionsErr
	}
	if len(f.snapshots) == 0 {
		return nil, nil
	}
	idx := f.fetches - 1
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	return f.snapshots[idx], nil
}

func (f *fakeClient) Terminate(ctx context.Context, sessionID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, terminateCall{sessionID: sessionID, reason: reason})
	return f.terminateErr
}

func (f *fakeClient) terminations() []terminateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]terminateCall(nil), f.terminated...)
}

type fakeNotifier struct {
	bodies []string
	err    error
}

func (n *fakeNotifier) Notify(summary, body string) error {
	n.bodies = append(n.bodies, body)
	return n.err
}

func transcode(key, user string, percent int64) session.Entry {
	return session.Entry{
		SessionKey:  key,
		SessionID:   "id-" + key,
		Usernames:   []string{user},
		Transcode:   &session.Transcode{VideoDecision: session.VideoDecisionTranscode},
		Duration:    movieLength,
		ViewOffset:  movieLength * percent / 100,
		Type:        "movie",
		Title:       "Movie " + key,
		PlayerState: "playing",
	}
}

func testConfig(admins ...string) *config.Config {
	cfg := config.Default()
	cfg.Server.URL = "http://localhost:32400"
	cfg.Server.Token = "token"
	cfg.Policy.Admins = admins
	return &cfg
}

func newTestEngine(t *testing.T, client Client, cfg *config.Config) (*Engine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	e, err := NewEngine(client, cfg, zerolog.Nop(), &out)
	require.NoError(t, err)
	return e, &out
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig("bob")
	cfg.Policy.Strategy = "random"
	_, err := NewEngine(&fakeClient{}, cfg, zerolog.Nop(), nil)
	assert.Error(t, err)

	cfg = testConfig("bob")
	cfg.Policy.Reason = "{{.User"
	_, err = NewEngine(&fakeClient{}, cfg, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestRun_AliceTwoStreams(t *testing.T) {
	snapshot := []session.Entry{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}
	client := &fakeClient{snapshots: [][]session.Entry{snapshot}}
	e, out := newTestEngine(t, client, testConfig("bob"))

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, "1", result.Decisions[0].ToKill.SessionKey)
	assert.Equal(t, "2", result.Decisions[0].ToFinish.SessionKey)

	calls := client.terminations()
	require.Len(t, calls, 1)
	assert.Equal(t, "id-1", calls[0].sessionID)
	assert.Contains(t, calls[0].reason, "80%")
	assert.Contains(t, calls[0].reason, "Movie 2")
	assert.Contains(t, calls[0].reason, "Should be finished in 20 minutes.")

	require.Len(t, result.Terminations, 1)
	assert.True(t, result.Terminations[0].Found)
	assert.True(t, result.Terminations[0].Stopped)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, calls[0].reason, lines[0])
	assert.Equal(t, "Terminated alice's stream of Movie 1 to prioritize admin stream.", lines[1])

	// selection snapshot plus the re-check snapshot
	assert.Equal(t, 2, client.fetches)
}

func TestRun_AdminStreamsIgnored(t *testing.T) {
	client := &fakeClient{snapshots: [][]session.Entry{{
		transcode("1", "bob", 10),
		transcode("2", "bob", 80),
	}}}
	e, out := newTestEngine(t, client, testConfig("bob"))

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
	assert.Empty(t, client.terminations())
	assert.Empty(t, out.String())
}

func TestRun_EmptySnapshot(t *testing.T) {
	client := &fakeClient{}
	e, out := newTestEngine(t, client, testConfig("bob"))

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
	assert.Empty(t, result.Terminations)
	assert.Empty(t, client.terminations())
	assert.Empty(t, out.String())
	assert.Equal(t, 1, client.fetches)
}

func TestRun_FetchFailure(t *testing.T) {
	client := &fakeClient{sessionsErr: errors.New("connection refused")}
	e, _ := newTestEngine(t, client, testConfig("bob"))

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_SessionGoneBeforeTermination(t *testing.T) {
	selection := []session.Entry{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}
	fresh := []session.Entry{transcode("2", "alice", 81)}
	client := &fakeClient{snapshots: [][]session.Entry{selection, fresh}}
	e, out := newTestEngine(t, client, testConfig("bob"))

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.terminations())
	require.Len(t, result.Terminations, 1)
	assert.False(t, result.Terminations[0].Found)
	assert.False(t, result.Terminations[0].Stopped)

	// the reason is still printed, but no confirmation line
	assert.NotContains(t, out.String(), "Terminated")
}

func TestRun_NoRecheckUsesSelectionSnapshot(t *testing.T) {
	selection := []session.Entry{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}
	client := &fakeClient{snapshots: [][]session.Entry{selection, nil}}
	cfg := testConfig("bob")
	recheck := false
	cfg.Policy.Recheck = &recheck
	e, _ := newTestEngine(t, client, cfg)

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.fetches)
	require.Len(t, client.terminations(), 1)
	assert.Equal(t, "id-1", client.terminations()[0].sessionID)
}

func TestRun_DryRun(t *testing.T) {
	client := &fakeClient{snapshots: [][]session.Entry{{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}}}
	cfg := testConfig("bob")
	cfg.Policy.DryRun = true
	e, out := newTestEngine(t, client, cfg)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.terminations())
	require.Len(t, result.Terminations, 1)
	assert.True(t, result.Terminations[0].Found)
	assert.False(t, result.Terminations[0].Stopped)
	assert.Contains(t, out.String(), "80% complete")
	assert.NotContains(t, out.String(), "Terminated")
}

func TestRun_TerminateFailureIsNotFatal(t *testing.T) {
	client := &fakeClient{
		snapshots: [][]session.Entry{{
			transcode("1", "alice", 10),
			transcode("2", "alice", 80),
		}},
		terminateErr: errors.New("boom"),
	}
	notifier := &fakeNotifier{}
	e, out := newTestEngine(t, client, testConfig("bob"))
	e.SetNotifier(notifier)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Terminations, 1)
	assert.False(t, result.Terminations[0].Stopped)
	assert.NotContains(t, out.String(), "Terminated")
	assert.Empty(t, notifier.bodies)
}

func TestRun_RecheckFetchFailureIsFatal(t *testing.T) {
	client := &failingAfterFirst{fakeClient: fakeClient{snapshots: [][]session.Entry{{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}}}}
	e, _ := newTestEngine(t, client, testConfig("bob"))

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to refresh sessions")
	assert.Empty(t, client.terminations())
}

type failingAfterFirst struct {
	fakeClient
}

func (f *failingAfterFirst) Sessions(ctx context.Context) ([]session.Entry, error) {
	if f.fetches > 0 {
		return nil, errors.New("server went away")
	}
	return f.fakeClient.Sessions(ctx)
}

func TestRun_Notifier(t *testing.T) {
	client := &fakeClient{snapshots: [][]session.Entry{{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}}}
	notifier := &fakeNotifier{err: errors.New("no bus")}
	e, _ := newTestEngine(t, client, testConfig("bob"))
	e.SetNotifier(notifier)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Terminations[0].Stopped)
	assert.Equal(t, []string{"Terminated alice's stream of Movie 1 to prioritize admin stream."}, notifier.bodies)
}

func TestRun_EachStrategyStopsEveryUser(t *testing.T) {
	client := &fakeClient{snapshots: [][]session.Entry{{
		transcode("a1", "alice", 40),
		transcode("c1", "carol", 70),
		transcode("a2", "alice", 90),
		transcode("c2", "carol", 5),
	}}}
	cfg := testConfig("bob")
	cfg.Policy.Strategy = "each"
	e, _ := newTestEngine(t, client, cfg)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Decisions, 2)

	calls := client.terminations()
	require.Len(t, calls, 2)
	assert.Equal(t, "id-a1", calls[0].sessionID)
	assert.Equal(t, "id-c2", calls[1].sessionID)
	assert.Contains(t, calls[0].reason, "alice(you) has 2 concurrent streams")
}

func TestRun_EpisodeTitles(t *testing.T) {
	weak := transcode("1", "alice", 10)
	weak.Type = session.TypeEpisode
	weak.GrandparentTitle = "Firefly"
	weak.Title = "Pilot"
	strong := transcode("2", "alice", 80)
	strong.Type = session.TypeEpisode
	strong.GrandparentTitle = "Firefly"
	strong.Title = "Serenity"

	client := &fakeClient{snapshots: [][]session.Entry{{weak, strong}}}
	e, out := newTestEngine(t, client, testConfig("bob"))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "alice's stream of Firefly - Serenity is 80% complete")
	assert.Contains(t, out.String(), "Terminated alice's stream of Firefly - Pilot to prioritize admin stream.")
}

func TestWatch_OnlyActsWhileAdminBuffering(t *testing.T) {
	calm := []session.Entry{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
		transcode("9", "bob", 50),
	}
	buffering := append([]session.Entry(nil), calm...)
	buffering[2].PlayerState = session.StateBuffering

	client := &fakeClient{snapshots: [][]session.Entry{calm, buffering}}
	cfg := testConfig("bob")
	cfg.Watch.Interval = config.Duration(10 * time.Millisecond)
	e, _ := newTestEngine(t, client, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()

	require.Eventually(t, func() bool {
		return len(client.terminations()) > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	assert.Equal(t, "id-1", client.terminations()[0].sessionID)
}

func TestWatch_WithoutBufferingRequirement(t *testing.T) {
	client := &fakeClient{snapshots: [][]session.Entry{{
		transcode("1", "alice", 10),
		transcode("2", "alice", 80),
	}}}
	cfg := testConfig("bob")
	cfg.Watch.Interval = config.Duration(time.Hour)
	requireBuffering := false
	cfg.Watch.RequireBuffering = &requireBuffering
	e, _ := newTestEngine(t, client, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()

	require.Eventually(t, func() bool {
		return len(client.terminations()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_InvalidInterval(t *testing.T) {
	cfg := testConfig("bob")
	cfg.Watch.Interval = 0
	e, _ := newTestEngine(t, &fakeClient{}, cfg)
	assert.Error(t, e.Watch(context.Background()))
}
