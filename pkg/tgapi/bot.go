package tgapi

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// The backend transcodes before sending, so this call is slow.
const sendTimeout = 60 * time.Second

// BotService hands tracks to the companion chat bot.
type BotService struct {
	client *Client
}

// Send asks the bot to deliver id to the current user's chat.
func (s *BotService) Send(ctx context.Context, id string) error {
	return s.client.call(ctx, request{
		op:      "send-to-bot",
		method:  http.MethodPost,
		path:    "/api/send-to-bot/" + url.PathEscape(id),
		auth:    true,
		timeout: sendTimeout,
	}, nil)
}
