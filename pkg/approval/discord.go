// pkg/approval/discord.go
//
// Discord variant of the approval channel: the request is posted via a
// webhook (?wait=true so Discord returns the created message), and the
// verdict is read by polling the message's reactions with a bot token.

package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/CodeMonkeyCybersecurity/2kc/pkg/httpclient"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	discordAPIBase      = "https://discord.com/api/v10"
	defaultPollInterval = 2500 * time.Millisecond

	emojiApprove = "✅"
	emojiDeny    = "❌"
)

// DiscordChannel posts to a webhook and polls reactions through the bot
// API. Approve takes precedence when both sentinel reactions are present
// at the same poll.
type DiscordChannel struct {
	WebhookURL string
	BotToken   string
	ChannelID  string

	// APIBase and PollInterval are overridable for tests.
	APIBase      string
	PollInterval time.Duration

	client *http.Client
}

// NewDiscordChannel wires a channel from config values.
func NewDiscordChannel(webhookURL, botToken, channelID string) (*DiscordChannel, error) {
	if webhookURL == "" || botToken == "" || channelID == "" {
		return nil, cerr.New("discord channel requires webhookUrl, botToken and channelId")
	}
	return &DiscordChannel{
		WebhookURL:   webhookURL,
		BotToken:     botToken,
		ChannelID:    channelID,
		APIBase:      discordAPIBase,
		PollInterval: defaultPollInterval,
		client:       httpclient.DefaultClient(),
	}, nil
}

type webhookMessage struct {
	ID string `json:"id"`
}

// SendApprovalRequest posts the summary and returns the created message id.
func (d *DiscordChannel) SendApprovalRequest(ctx context.Context, summary Summary) (string, error) {
	body, err := d.post(ctx, d.WebhookURL+"?wait=true", summary.Render())
	if err != nil {
		return "", cerr.Wrap(err, "failed to post approval request")
	}
	var msg webhookMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", cerr.Wrap(err, "failed to parse webhook response")
	}
	if msg.ID == "" {
		return "", cerr.New("webhook response carried no message id")
	}
	return msg.ID, nil
}

// WaitForResponse polls the reactions endpoint until a sentinel emoji
// appears or the timeout elapses.
func (d *DiscordChannel) WaitForResponse(ctx context.Context, messageID string, timeout time.Duration) (Verdict, error) {
	logger := otelzap.Ctx(ctx)
	deadline := time.Now().Add(timeout)

	for {
		approved, err := d.hasReaction(ctx, messageID, emojiApprove)
		if err != nil {
			return "", err
		}
		denied, err := d.hasReaction(ctx, messageID, emojiDeny)
		if err != nil {
			return "", err
		}

		// approve wins when both are present at the same poll
		if approved {
			return VerdictApproved, nil
		}
		if denied {
			return VerdictDenied, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			logger.Info("Approval poll timed out", zap.String("message_id", messageID))
			return VerdictTimeout, nil
		}

		wait := d.PollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return VerdictTimeout, nil
		case <-time.After(wait):
		}
	}
}

// SendNotification posts an audit line through the webhook.
func (d *DiscordChannel) SendNotification(ctx context.Context, text string) error {
	_, err := d.post(ctx, d.WebhookURL, text)
	if err != nil {
		return cerr.Wrap(err, "failed to post notification")
	}
	return nil
}

func (d *DiscordChannel) post(ctx context.Context, target, content string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, cerr.Newf("discord webhook returned %d", resp.StatusCode)
	}
	return body, nil
}

// hasReaction checks whether anyone reacted with the given emoji. A 404
// means the message is not indexed yet and reads as "no reactions".
func (d *DiscordChannel) hasReaction(ctx context.Context, messageID, emoji string) (bool, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages/%s/reactions/%s",
		d.APIBase, d.ChannelID, messageID, url.PathEscape(emoji))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bot "+d.BotToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, cerr.Wrap(err, "failed to poll reactions")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, cerr.Newf("discord reactions endpoint returned %d", resp.StatusCode)
	}

	var users []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return false, cerr.Wrap(err, "failed to parse reactions response")
	}
	return len(users) > 0, nil
}
