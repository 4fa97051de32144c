package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/calendar"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/outlook"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft/teams"
	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
)

type graphRoutes struct {
	graph driving.GraphService
}

type sendMailRequest struct {
	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
	To              []string `json:"to"`
	CC              []string `json:"cc"`
	HTML            bool     `json:"html"`
	SaveToSentItems *bool    `json:"save_to_sent_items"`
}

type createMeetingRequest struct {
	Subject   string    `json:"subject"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	TimeZone  string    `json:"time_zone"`
	Location  string    `json:"location"`
	Body      string    `json:"body"`
	Attendees []string  `json:"attendees"`
	Online    bool      `json:"online"`
}

type chatMessageRequest struct {
	Content string `json:"content"`
	HTML    bool   `json:"html"`
}

func (g *graphRoutes) me(w http.ResponseWriter, r *http.Request) error {
	return writeResult(w)(g.graph.Me(r.Context()))
}

func (g *graphRoutes) listChats(w http.ResponseWriter, r *http.Request) error {
	return writeResult(w)(g.graph.ListChats(r.Context()))
}

func (g *graphRoutes) sendChatMessage(w http.ResponseWriter, r *http.Request) error {
	var req chatMessageRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	msg, err := teams.NewChatMessage(req.Content)
	if err != nil {
		return err
	}
	if req.HTML {
		msg.AsHTML()
	}
	return writeResult(w)(g.graph.SendChatMessage(r.Context(), chi.URLParam(r, "chatID"), msg))
}

func (g *graphRoutes) listUsers(w http.ResponseWriter, r *http.Request) error {
	top, err := queryInt(r, "top")
	if err != nil {
		return err
	}
	return writeResult(w)(g.graph.ListUsers(r.Context(), top))
}

func (g *graphRoutes) sendMail(w http.ResponseWriter, r *http.Request) error {
	var req sendMailRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	mail, err := outlook.NewMail(req.Subject, req.Body, req.To...)
	if err != nil {
		return err
	}
	mail.WithCC(req.CC...)
	if req.HTML {
		mail.AsHTML()
	}
	if req.SaveToSentItems != nil {
		mail.SaveToSentItems(*req.SaveToSentItems)
	}
	return writeResult(w)(g.graph.SendMail(r.Context(), chi.URLParam(r, "user"), mail))
}

func (g *graphRoutes) listMessages(w http.ResponseWriter, r *http.Request) error {
	top, err := queryInt(r, "top")
	if err != nil {
		return err
	}
	return writeResult(w)(g.graph.ListMessages(r.Context(), chi.URLParam(r, "user"), top))
}

func (g *graphRoutes) createMeeting(w http.ResponseWriter, r *http.Request) error {
	var req createMeetingRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	meeting, err := calendar.NewMeeting(req.Subject, req.Start, req.End, req.TimeZone)
	if err != nil {
		return err
	}
	meeting.WithLocation(req.Location).WithBody(req.Body).WithAttendees(req.Attendees...)
	if req.Online {
		meeting.WithOnlineMeeting()
	}
	return writeResult(w)(g.graph.CreateMeeting(r.Context(), chi.URLParam(r, "user"), meeting))
}

func (g *graphRoutes) listEvents(w http.ResponseWriter, r *http.Request) error {
	start, err := queryTime(r, "start")
	if err != nil {
		return err
	}
	end, err := queryTime(r, "end")
	if err != nil {
		return err
	}
	return writeResult(w)(g.graph.ListEvents(r.Context(), chi.URLParam(r, "user"), start, end))
}

// passthrough relays any method and path under the mode named in the URL.
func (g *graphRoutes) passthrough(w http.ResponseWriter, r *http.Request) error {
	mode, err := domain.ParseAuthMode(chi.URLParam(r, "mode"))
	if err != nil {
		return err
	}

	target := chi.URLParam(r, "*")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
	}
	var body any
	if len(raw) > 0 {
		body = json.RawMessage(raw)
	}

	return writeResult(w)(g.graph.Do(r.Context(), mode, r.Method, target, body))
}

// writeResult returns a function that writes a relay result or passes its
// error on, so handlers can return the service call directly.
func writeResult(w http.ResponseWriter) func(*domain.RelayResult, error) error {
	return func(result *domain.RelayResult, err error) error {
		if err != nil {
			return err
		}
		if result.Accepted {
			w.WriteHeader(result.StatusCode)
			return nil
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.StatusCode)
		_, _ = w.Write(result.Body)
		return nil
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", domain.ErrInvalidInput, name)
	}
	return t, nil
}
