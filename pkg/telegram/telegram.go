package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MessageSender is the part of *bot.Bot used here.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Client posts plain text messages to a fixed set of chats.
type Client struct {
	sender  MessageSender
	chatIDs []int64
}

func New(token string, chatIDs []int64) (*Client, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return NewWithSender(b, chatIDs), nil
}

func NewWithSender(sender MessageSender, chatIDs []int64) *Client {
	return &Client{sender: sender, chatIDs: chatIDs}
}

func (c *Client) Send(ctx context.Context, message string) error {
	for _, chatID := range c.chatIDs {
		params := &bot.SendMessageParams{
			ChatID: chatID,
			Text:   message,
		}
		if _, err := c.sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send to chat_id %d: %w", chatID, err)
		}
	}
	return nil
}
