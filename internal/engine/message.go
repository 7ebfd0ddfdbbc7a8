package engine

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/SoarinFerret/StreamWarden/internal/eval"
)

// reasonData is what the reason template can reference.
type reasonData struct {
	Admin     string // who claims priority
	User      string
	Count     int // number of users with concurrent transcodes
	GroupSize int // number of concurrent transcodes of User
	Video     string
	Percent   int
	Minutes   int
}

func parseReason(text string) (*template.Template, error) {
	tmpl, err := template.New("reason").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid reason template: %w", err)
	}
	return tmpl, nil
}

// composeReason renders the message shown to the user whose stream is
// stopped. The estimate comes from the user's most complete stream.
func composeReason(tmpl *template.Template, admin string, d eval.Decision) (string, error) {
	data := reasonData{
		Admin:     admin,
		User:      d.ToFinish.Username,
		Count:     d.Qualifying,
		GroupSize: d.Streams,
		Video:     d.ToFinish.Title,
		Percent:   d.ToFinish.PercentComplete,
		Minutes:   d.ToFinish.MinutesRemaining,
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render reason: %w", err)
	}
	return b.String(), nil
}

func confirmation(username, title string) string {
	return fmt.Sprintf("Terminated %s's stream of %s to prioritize admin stream.", username, title)
}
