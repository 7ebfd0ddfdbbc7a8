package session

// Transcode is the transcode decision the media server reports for a session.
type Transcode struct {
	VideoDecision string
}

// Entry is one raw session as reported by the media server.
type Entry struct {
	SessionKey       string
	SessionID        string
	Usernames        []string
	Transcode        *Transcode
	Duration         int64
	ViewOffset       int64
	Type             string
	Title            string
	ParentTitle      string
	GrandparentTitle string
	PlayerState      string
}

// Record is the derived, read-only view of an Entry used by the policy.
type Record struct {
	SessionKey       string
	SessionID        string
	Username         string
	Transcoding      bool
	Admin            bool
	PercentComplete  int
	MinutesRemaining int
	Title            string
}

// AdminSet holds the usernames whose streams take priority.
type AdminSet map[string]struct{}
