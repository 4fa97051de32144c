// Package teams builds Microsoft Graph chat message payloads.
package teams

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// ChatMessage is the body of POST /chats/{id}/messages.
type ChatMessage struct {
	Body ItemBody `json:"body"`
}

// ItemBody contains body content. ContentType is omitted for plain text,
// which is the Graph default.
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
}

// NewChatMessage creates a plain text chat message.
func NewChatMessage(content string) (*ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: chat message content is required", domain.ErrInvalidInput)
	}
	return &ChatMessage{Body: ItemBody{Content: content}}, nil
}

// AsHTML marks the content as HTML.
func (m *ChatMessage) AsHTML() *ChatMessage {
	m.Body.ContentType = "html"
	return m
}

// ChatsPath is the signed-in user's chat list.
const ChatsPath = "me/chats"

// ChatMessagesPath returns the message collection of chatID.
func ChatMessagesPath(chatID string) string {
	return "chats/" + url.PathEscape(chatID) + "/messages"
}
