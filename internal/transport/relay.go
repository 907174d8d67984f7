package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenSource issues bearer tokens for outbound relay calls.
type TokenSource func() (string, error)

// Relay talks to the chat-platform relay over HTTP. Outbound operations are
// JSON calls to the relay; inbound messages arrive through the webhook and
// are buffered in the Mailbox.
type Relay struct {
	baseURL string
	timeout time.Duration
	tokens  TokenSource
	mailbox *Mailbox
	logger  *zap.Logger
}

// NewRelay constructs a Relay transport.
func NewRelay(baseURL string, timeout time.Duration, tokens TokenSource, mailbox *Mailbox, logger *zap.Logger) *Relay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Relay{baseURL: baseURL, timeout: timeout, tokens: tokens, mailbox: mailbox, logger: logger}
}

type createChannelRequest struct {
	UserID string `json:"user_id"`
}

type createChannelResponse struct {
	ChannelRef string `json:"channel_ref"`
}

func (r *Relay) CreateChannel(ctx context.Context, userExternalID string) (string, error) {
	var resp createChannelResponse
	if err := r.call(ctx, fiber.MethodPost, "/channels", createChannelRequest{UserID: userExternalID}, &resp); err != nil {
		return "", err
	}
	if resp.ChannelRef == "" {
		return "", errors.New("relay returned empty channel_ref")
	}
	return resp.ChannelRef, nil
}

func (r *Relay) DeleteChannel(ctx context.Context, channelRef string) error {
	err := r.call(ctx, fiber.MethodDelete, "/channels/"+url.PathEscape(channelRef), nil, nil)
	r.mailbox.Discard(channelRef)
	return err
}

func (r *Relay) ChannelExists(ctx context.Context, channelRef string) (bool, error) {
	err := r.call(ctx, fiber.MethodGet, "/channels/"+url.PathEscape(channelRef), nil, nil)
	if errors.Is(err, ErrChannelNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Relay) SendPrompt(ctx context.Context, channelRef string, prompt Prompt) error {
	return r.call(ctx, fiber.MethodPost, "/channels/"+url.PathEscape(channelRef)+"/prompts", prompt, nil)
}

func (r *Relay) AwaitNextMessage(ctx context.Context, channelRef string, predicate func(Message) bool) (Message, error) {
	return r.mailbox.Await(ctx, channelRef, predicate)
}

func (r *Relay) DiscardPending(_ context.Context, channelRef string) error {
	if dropped := r.mailbox.Flush(channelRef); dropped > 0 {
		r.logger.Debug("discarded stale messages", zap.String("channel_ref", channelRef), zap.Int("count", dropped))
	}
	return nil
}

type grantRoleRequest struct {
	UserID string `json:"user_id"`
}

func (r *Relay) GrantRole(ctx context.Context, userExternalID string) error {
	return r.call(ctx, fiber.MethodPost, "/roles/grants", grantRoleRequest{UserID: userExternalID}, nil)
}

func (r *Relay) NotifyAdmins(ctx context.Context, notification AdminNotification) error {
	return r.call(ctx, fiber.MethodPost, "/admin/notifications", notification, nil)
}

// Deliver hands an inbound webhook message to the waiting conversation.
func (r *Relay) Deliver(channelRef string, msg Message) error {
	return r.mailbox.Deliver(channelRef, msg)
}

func (r *Relay) call(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var agent *fiber.Agent
	target := r.baseURL + path
	switch method {
	case fiber.MethodGet:
		agent = fiber.Get(target)
	case fiber.MethodDelete:
		agent = fiber.Delete(target)
	default:
		agent = fiber.Post(target)
	}
	agent.Timeout(r.timeout)

	if r.tokens != nil {
		token, err := r.tokens()
		if err != nil {
			return fmt.Errorf("relay token: %w", err)
		}
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		agent.JSON(body)
	}

	status, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		r.logger.Warn("relay call failed", zap.String("method", method), zap.String("path", path), zap.Errors("errors", errs))
		return fmt.Errorf("relay %s %s: %w", method, path, errors.Join(errs...))
	}
	switch {
	case status == http.StatusNotFound:
		return ErrChannelNotFound
	case status >= 300:
		return fmt.Errorf("relay %s %s: unexpected status %d", method, path, status)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("relay %s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
