// Package slack implements the notify Adapter for Slack.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
	"github.com/westrik/parley/internal/notify"
)

// client abstracts the Slack API methods we use, enabling test mocks.
type client interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter posts digests to a Slack channel.
type Adapter struct {
	client    client
	channelID string
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client client
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	a := &Adapter{channelID: opts.ChannelID}
	if opts.Client != nil {
		a.client = opts.Client
	} else {
		a.client = slackapi.New(opts.BotToken)
	}
	return a, nil
}

// Send posts the digest to the configured channel.
func (a *Adapter) Send(ctx context.Context, d notify.Digest) error {
	_, _, err := a.client.PostMessageContext(ctx, a.channelID,
		slackapi.MsgOptionText(notify.FormatDigest(d), false))
	if err != nil {
		return fmt.Errorf("slack: post digest: %w", err)
	}
	return nil
}

// Close is a no-op; the Slack web API client holds no connection.
func (a *Adapter) Close() error { return nil }
