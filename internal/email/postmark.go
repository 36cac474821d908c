// Package email delivers invitation links through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at a different Postmark endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// AcceptLink returns the URL the invitee follows to redeem token.
func (c *Client) AcceptLink(token string) string {
	return fmt.Sprintf("%s/invitations/accept?token=%s", c.baseURL, url.QueryEscape(token))
}

// SendInvitation emails the invitee a link to redeem inv.
func (c *Client) SendInvitation(ctx context.Context, inv *model.Invitation, inviterEmail string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	var subject, action string
	switch inv.Role {
	case model.RoleChild:
		subject = "Your KidQuest login is ready"
		action = "start your quests"
	default:
		subject = fmt.Sprintf("%s invited you to KidQuest", inviterEmail)
		action = "help manage quests and rewards"
	}

	link := c.AcceptLink(inv.Token)
	expires := inv.ExpiresAt.UTC().Format("Jan 2, 2006 15:04 MST")
	textBody := fmt.Sprintf("Follow the link below to %s:\n\n%s\n\nThis link expires %s.", action, link, expires)
	htmlBody := fmt.Sprintf(
		`<p>Follow the link below to %s:</p><p><a href="%s">Accept invitation</a></p><p>This link expires %s.</p>`,
		action, link, expires,
	)

	body, err := json.Marshal(postmarkEmail{
		From:     c.fromEmail,
		To:       inv.InviteeEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
