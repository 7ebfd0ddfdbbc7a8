package plex

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SoarinFerret/StreamWarden/internal/session"
)

const (
	sessionsPath  = "/status/sessions"
	terminatePath = "/status/sessions/terminate"

	productName      = "StreamWarden"
	clientIdentifier = "streamwarden"
)

// ErrUnauthorized is returned when the server rejects the token.
var ErrUnauthorized = errors.New("plex server rejected the token")

// Client talks to a Plex Media Server.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	HTTPClient         *http.Client
}

func NewClient(rawURL, token string, opts Options, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", rawURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	return &Client{
		baseURL: u,
		token:   token,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// Sessions returns the sessions currently active on the server.
func (c *Client) Sessions(ctx context.Context) ([]session.Entry, error) {
	var body sessionsResponse
	if err := c.get(ctx, sessionsPath, nil, &body); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	entries := make([]session.Entry, 0, len(body.MediaContainer.Metadata))
	for i := range body.MediaContainer.Metadata {
		entries = append(entries, body.MediaContainer.Metadata[i].entry())
	}

	c.logger.Debug().Int("sessions", len(entries)).Msg("fetched session snapshot")
	return entries, nil
}

// Terminate stops the session with the given server session id and shows
// reason to the user whose stream is stopped.
func (c *Client) Terminate(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return fmt.Errorf("failed to terminate session: empty session id")
	}
	query := url.Values{}
	query.Set("sessionId", sessionID)
	query.Set("reason", reason)

	if err := c.get(ctx, terminatePath, query, nil); err != nil {
		return fmt.Errorf("failed to terminate session %s: %w", sessionID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Product", productName)
	req.Header.Set("X-Plex-Client-Identifier", clientIdentifier)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
