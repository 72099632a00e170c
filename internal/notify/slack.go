package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/qmoi/selfheal/internal/types"
)

// maxHeaderChars is Slack's limit for plain_text in a header block.
const maxHeaderChars = 150

// Slack posts escalations to a Slack incoming webhook.
type Slack struct {
	url      string
	channel  string
	username string
	client   *resty.Client
}

// NewSlack creates a Slack notifier. channel and username may be empty to
// use the webhook's defaults.
func NewSlack(webhookURL, channel, username string, opts ...Option) *Slack {
	if username == "" {
		username = "selfheal"
	}
	return &Slack{url: webhookURL, channel: channel, username: username, client: newHTTPClient(opts)}
}

type slackMessage struct {
	Channel   string       `json:"channel,omitempty"`
	Username  string       `json:"username,omitempty"`
	IconEmoji string       `json:"icon_emoji,omitempty"`
	Text      string       `json:"text"`
	Blocks    []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, esc *types.Escalation) error {
	title := Title(esc)
	body := fmt.Sprintf("*Reason:* %s", esc.Reason)
	if esc.Count > 0 {
		body += fmt.Sprintf("\n*Seen:* %d times", esc.Count)
	}
	if esc.Fingerprint != "" {
		body += fmt.Sprintf("\n*Fingerprint:* `%s`", esc.Fingerprint)
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: headerText(title)}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: body}},
	}
	if esc.Sample != "" {
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "```" + esc.Sample + "```"}})
	}
	if d := esc.Diagnosis; d != nil {
		text := fmt.Sprintf("*Diagnosis* (%.0f%% confident): %s", d.Confidence*100, d.Summary)
		for _, c := range d.SuggestedCommands {
			text += fmt.Sprintf("\n`%s`", c)
		}
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}})
	}

	return post(ctx, s.client, "slack", s.url, slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: ":rotating_light:",
		Text:      title,
		Blocks:    blocks,
	})
}

// headerText shortens title to fit a header block, counting runes.
func headerText(title string) string {
	if utf8.RuneCountInString(title) <= maxHeaderChars {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxHeaderChars-1]) + "…"
}
