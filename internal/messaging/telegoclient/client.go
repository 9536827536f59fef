// Package telegoclient adapts github.com/mymmrac/telego to the abstract
// messaging.Client interface (spec §6.3), translating its API errors into
// the typed SDK error hierarchy messaging.Classify matches against.
package telegoclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/devstz/autoposter-node/internal/messaging"
)

// Client wraps a *telego.Bot; it does not start long polling.
type Client struct {
	bot *telego.Bot
}

// New creates a Client from a bot token, the way the original's aiogram
// Bot(token=...) is constructed per-bot (spec §6.3).
func New(token string) (*Client, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Client{bot: bot}, nil
}

func (c *Client) GetMe(ctx context.Context) (*messaging.Me, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return &messaging.Me{
		ID:       me.ID,
		Username: me.Username,
		FullName: strings.TrimSpace(me.FirstName + " " + me.LastName),
	}, nil
}

func (c *Client) GetChat(ctx context.Context, chatID int64) (*messaging.Chat, error) {
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return nil, mapErr(err)
	}
	return &messaging.Chat{
		ID:       chatID,
		Type:     string(chat.Type),
		Title:    chat.Title,
		Username: chat.Username,
	}, nil
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*messaging.ChatMember, error) {
	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{ChatID: tu.ID(chatID), UserID: userID})
	if err != nil {
		return nil, mapErr(err)
	}
	return &messaging.ChatMember{Status: messaging.ChatMemberStatus(member.MemberStatus())}, nil
}

func (c *Client) Forward(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
	msg, err := c.bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(toChatID),
		FromChatID: tu.ID(fromChatID),
		MessageID:  int(messageID),
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return int64(msg.MessageID), nil
}

func (c *Client) Delete(ctx context.Context, chatID, messageID int64) error {
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: int(messageID),
	})
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (c *Client) Pin(ctx context.Context, chatID, messageID int64) error {
	err := c.bot.PinChatMessage(ctx, &telego.PinChatMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: int(messageID),
	})
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, htmlText string) error {
	msg := tu.Message(tu.ID(chatID), htmlText).WithParseMode(telego.ModeHTML)
	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		return mapErr(err)
	}
	return nil
}

// mapErr translates a telego API error into the typed hierarchy Classify
// matches on, following the same description-substring rules the original
// applied to aiogram's TelegramAPIError (spec §4.4).
func mapErr(err error) error {
	var apiErr *telego.Error
	if !errors.As(err, &apiErr) {
		return messaging.NewNetworkError(err.Error())
	}

	desc := strings.ToLower(apiErr.Description)

	if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
		return messaging.NewRetryAfterError(apiErr.Parameters.RetryAfter)
	}
	if apiErr.ErrorCode >= 500 {
		return messaging.NewServerError(apiErr.Description)
	}
	if strings.Contains(desc, "chat not found") {
		return messaging.NewChatNotFoundError(apiErr.Description)
	}
	if strings.Contains(desc, "bot was kicked") || strings.Contains(desc, "bot was blocked") ||
		strings.Contains(desc, "user is deactivated") || strings.Contains(desc, "forbidden") {
		return messaging.NewForbiddenError(apiErr.Description)
	}
	return messaging.NewBadRequestError(apiErr.Description)
}
