package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/calendar"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/outlook"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/teams"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
)

// Ensure GraphService implements the interface.
var _ driving.GraphService = (*GraphService)(nil)

// maxUsersTop is the largest page size Graph accepts for users.
const maxUsersTop = 999

// GraphService resolves a token through the dispatcher and relays the call.
type GraphService struct {
	dispatcher driving.CredentialDispatcher
	remote     driven.RemoteAPI
}

// NewGraphService creates a graph service.
func NewGraphService(dispatcher driving.CredentialDispatcher, remote driven.RemoteAPI) *GraphService {
	return &GraphService{dispatcher: dispatcher, remote: remote}
}

// Do relays method on path under mode.
func (s *GraphService) Do(ctx context.Context, mode domain.AuthMode, method, path string, body any) (*domain.RelayResult, error) {
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", domain.ErrInvalidInput, method)
	}

	token, err := s.dispatcher.Resolve(ctx, mode)
	if err != nil {
		return nil, err
	}
	return s.remote.Call(ctx, method, path, body, token)
}

// Me returns the signed-in user's profile.
func (s *GraphService) Me(ctx context.Context) (*domain.RelayResult, error) {
	return s.Do(ctx, domain.AuthModeDelegated, http.MethodGet, "me", nil)
}

// ListChats lists the signed-in user's chats.
func (s *GraphService) ListChats(ctx context.Context) (*domain.RelayResult, error) {
	return s.Do(ctx, domain.AuthModeDelegated, http.MethodGet, teams.ChatsPath, nil)
}

// SendChatMessage posts msg to chatID.
func (s *GraphService) SendChatMessage(ctx context.Context, chatID string, msg *teams.ChatMessage) (*domain.RelayResult, error) {
	if chatID == "" || msg == nil {
		return nil, fmt.Errorf("%w: chat id and message are required", domain.ErrInvalidInput)
	}
	return s.Do(ctx, domain.AuthModeDelegated, http.MethodPost, teams.ChatMessagesPath(chatID), msg)
}

// SendMail sends mail as user.
func (s *GraphService) SendMail(ctx context.Context, user string, mail *outlook.Mail) (*domain.RelayResult, error) {
	if user == "" || mail == nil {
		return nil, fmt.Errorf("%w: user and mail are required", domain.ErrInvalidInput)
	}
	return s.Do(ctx, domain.AuthModeApplication, http.MethodPost, outlook.SendMailPath(user), mail)
}

// ListMessages lists the newest top messages of user.
func (s *GraphService) ListMessages(ctx context.Context, user string, top int) (*domain.RelayResult, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrInvalidInput)
	}
	return s.Do(ctx, domain.AuthModeApplication, http.MethodGet, outlook.MessagesPath(user, top), nil)
}

// CreateMeeting creates meeting in user's calendar.
func (s *GraphService) CreateMeeting(ctx context.Context, user string, meeting *calendar.Meeting) (*domain.RelayResult, error) {
	if user == "" || meeting == nil {
		return nil, fmt.Errorf("%w: user and meeting are required", domain.ErrInvalidInput)
	}
	return s.Do(ctx, domain.AuthModeApplication, http.MethodPost, calendar.EventsPath(user), meeting)
}

// ListEvents lists user's calendar between start and end.
func (s *GraphService) ListEvents(ctx context.Context, user string, start, end time.Time) (*domain.RelayResult, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrInvalidInput)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", domain.ErrInvalidInput)
	}
	return s.Do(ctx, domain.AuthModeApplication, http.MethodGet, calendar.CalendarViewPath(user, start, end), nil)
}

// ListUsers lists up to top directory users.
func (s *GraphService) ListUsers(ctx context.Context, top int) (*domain.RelayResult, error) {
	if top <= 0 {
		top = 100
	}
	if top > maxUsersTop {
		top = maxUsersTop
	}
	q := url.Values{}
	q.Set("$top", strconv.Itoa(top))
	q.Set("$select", "id,displayName,mail,userPrincipalName")
	return s.Do(ctx, domain.AuthModeApplication, http.MethodGet, "users?"+q.Encode(), nil)
}
