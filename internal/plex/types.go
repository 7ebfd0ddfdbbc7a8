package plex

import "github.com/SoarinFerret/StreamWarden/internal/session"

// sessionsResponse mirrors the JSON body of GET /status/sessions.
type sessionsResponse struct {
	MediaContainer struct {
		Size     int        `json:"size"`
		Metadata []metadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type metadata struct {
	SessionKey       string            `json:"sessionKey"`
	Type             string            `json:"type"`
	Title            string            `json:"title"`
	ParentTitle      string            `json:"parentTitle"`
	GrandparentTitle string            `json:"grandparentTitle"`
	Duration         int64             `json:"duration"`
	ViewOffset       int64             `json:"viewOffset"`
	User             *user             `json:"User"`
	Player           *player           `json:"Player"`
	Session          *sessionInfo      `json:"Session"`
	TranscodeSession *transcodeSession `json:"TranscodeSession"`
}

type user struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type player struct {
	Device   string `json:"device"`
	Platform string `json:"platform"`
	Product  string `json:"product"`
	State    string `json:"state"`
	Local    bool   `json:"local"`
}

type sessionInfo struct {
	ID        string `json:"id"`
	Bandwidth int    `json:"bandwidth"`
	Location  string `json:"location"`
}

type transcodeSession struct {
	Key           string `json:"key"`
	VideoDecision string `json:"videoDecision"`
	AudioDecision string `json:"audioDecision"`
	Throttled     bool   `json:"throttled"`
}

func (m *metadata) entry() session.Entry {
	e := session.Entry{
		SessionKey:       m.SessionKey,
		Type:             m.Type,
		Title:            m.Title,
		ParentTitle:      m.ParentTitle,
		GrandparentTitle: m.GrandparentTitle,
		Duration:         m.Duration,
		ViewOffset:       m.ViewOffset,
	}
	if m.User != nil && m.User.Title != "" {
		e.Usernames = []string{m.User.Title}
	}
	if m.Player != nil {
		e.PlayerState = m.Player.State
	}
	if m.Session != nil {
		e.SessionID = m.Session.ID
	}
	if m.TranscodeSession != nil {
		e.Transcode = &session.Transcode{VideoDecision: m.TranscodeSession.VideoDecision}
	}
	return e
}
