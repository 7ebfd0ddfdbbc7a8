package session

const (
	VideoDecisionTranscode = "transcode"
	TypeEpisode            = "episode"
	StateBuffering         = "buffering"
)

// Username returns the first reported username, or "" when none is present.
func (e *Entry) Username() string {
	if len(e.Usernames) == 0 {
		return ""
	}
	return e.Usernames[0]
}

func (e *Entry) IsTranscoding() bool {
	return e.Transcode != nil && e.Transcode.VideoDecision == VideoDecisionTranscode
}

func (e *Entry) IsBuffering() bool {
	return e.PlayerState == StateBuffering
}

// DisplayTitle is "{show} - {episode}" for episodes and the plain title otherwise.
func (e *Entry) DisplayTitle() string {
	if e.Type == TypeEpisode {
		return e.GrandparentTitle + " - " + e.Title
	}
	return e.Title
}

// Record derives the policy view of the entry. ok is false when the
// duration is not positive; the percent is then reported as zero.
func (e *Entry) Record(admins AdminSet) (rec Record, ok bool) {
	percent, ok := Progress(e.Duration, e.ViewOffset)
	username := e.Username()
	return Record{
		SessionKey:       e.SessionKey,
		SessionID:        e.SessionID,
		Username:         username,
		Transcoding:      e.IsTranscoding(),
		Admin:            admins.Contains(username),
		PercentComplete:  percent,
		MinutesRemaining: MinutesRemaining(e.Duration, e.ViewOffset),
		Title:            e.DisplayTitle(),
	}, ok
}

// FindByKey returns the entry with the given session key.
func FindByKey(entries []Entry, key string) (*Entry, bool) {
	for i := range entries {
		if entries[i].SessionKey == key {
			return &entries[i], true
		}
	}
	return nil, false
}

func NewAdminSet(usernames []string) AdminSet {
	set := make(AdminSet, len(usernames))
	for _, name := range usernames {
		set[name] = struct{}{}
	}
	return set
}

func (a AdminSet) Contains(username string) bool {
	_, exists := a[username]
	return exists
}
