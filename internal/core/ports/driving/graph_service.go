package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/calendar"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/outlook"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/teams"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// GraphService exposes the relayed collaboration operations.
// Each operation declares the auth mode it requires.
type GraphService interface {
	// Do relays an arbitrary call under the given mode.
	Do(ctx context.Context, mode domain.AuthMode, method, path string, body any) (*domain.RelayResult, error)

	// Me returns the signed-in user's profile. Delegated.
	Me(ctx context.Context) (*domain.RelayResult, error)
	// ListChats lists the signed-in user's chats. Delegated.
	ListChats(ctx context.Context) (*domain.RelayResult, error)
	// SendChatMessage posts a message to a chat. Delegated.
	SendChatMessage(ctx context.Context, chatID string, msg *teams.ChatMessage) (*domain.RelayResult, error)

	// SendMail sends mail on behalf of user. Application.
	SendMail(ctx context.Context, user string, mail *outlook.Mail) (*domain.RelayResult, error)
	// ListMessages lists the most recent messages of user's mailbox. Application.
	ListMessages(ctx context.Context, user string, top int) (*domain.RelayResult, error)
	// CreateMeeting creates an event in user's calendar. Application.
	CreateMeeting(ctx context.Context, user string, meeting *calendar.Meeting) (*domain.RelayResult, error)
	// ListEvents lists user's calendar view between start and end. Application.
	ListEvents(ctx context.Context, user string, start, end time.Time) (*domain.RelayResult, error)
	// ListUsers lists directory users. Application.
	ListUsers(ctx context.Context, top int) (*domain.RelayResult, error)
}
