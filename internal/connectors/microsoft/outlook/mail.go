// Package outlook builds Microsoft Graph mail payloads.
package outlook

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

// MaxTop is the largest page size Graph accepts for messages.
const MaxTop = 1000

// messageFields are selected when listing messages.
var messageFields = []string{
	"id", "subject", "bodyPreview", "from", "toRecipients",
	"receivedDateTime", "isRead", "webLink",
}

// Mail is the body of POST /users/{user}/sendMail.
type Mail struct {
	Message  Message `json:"message"`
	SaveCopy *bool   `json:"saveToSentItems,omitempty"`
}

// Message is an outgoing Outlook message.
type Message struct {
	Subject      string      `json:"subject"`
	Body         MessageBody `json:"body"`
	ToRecipients []Recipient `json:"toRecipients"`
	CcRecipients []Recipient `json:"ccRecipients,omitempty"`
}

// MessageBody represents the body of an email.
type MessageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Recipient represents an email recipient.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// EmailAddress represents an email address with optional name.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// NewMail creates a plain text mail to one or more recipients.
func NewMail(subject, body string, to ...string) (*Mail, error) {
	recipients := toRecipients(to)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: mail needs at least one recipient", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: mail subject is required", domain.ErrInvalidInput)
	}

	return &Mail{
		Message: Message{
			Subject:      subject,
			Body:         MessageBody{ContentType: "Text", Content: body},
			ToRecipients: recipients,
		},
	}, nil
}

// AsHTML marks the body as HTML.
func (m *Mail) AsHTML() *Mail {
	m.Message.Body.ContentType = "HTML"
	return m
}

// WithCC adds carbon-copy recipients. Blank addresses are skipped.
func (m *Mail) WithCC(cc ...string) *Mail {
	m.Message.CcRecipients = append(m.Message.CcRecipients, toRecipients(cc)...)
	return m
}

// SaveToSentItems controls whether Graph keeps a copy in Sent Items.
// Graph saves by default when unset.
func (m *Mail) SaveToSentItems(save bool) *Mail {
	m.SaveCopy = &save
	return m
}

func toRecipients(addresses []string) []Recipient {
	var out []Recipient
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		out = append(out, Recipient{EmailAddress: EmailAddress{Address: addr}})
	}
	return out
}

// SendMailPath returns the sendMail action of user.
func SendMailPath(user string) string {
	return "users/" + url.PathEscape(user) + "/sendMail"
}

// MessagesPath returns the newest top messages of user. top is clamped to
// [1, MaxTop]; zero or less means 10.
func MessagesPath(user string, top int) string {
	if top <= 0 {
		top = 10
	}
	if top > MaxTop {
		top = MaxTop
	}
	q := url.Values{}
	q.Set("$top", strconv.Itoa(top))
	q.Set("$select", strings.Join(messageFields, ","))
	q.Set("$orderby", "receivedDateTime desc")
	return "users/" + url.PathEscape(user) + "/messages?" + q.Encode()
}
