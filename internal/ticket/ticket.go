// Package ticket is the local support ticket system: storage, the user
// and admin views, and pagination.
package ticket

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Priority is a ticket's urgency.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Priorities lists priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) rank() int {
	for i, q := range Priorities {
		if p == q {
			return i + 1
		}
	}
	return 0
}

// Status is a ticket's workflow state.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusAwaiting   Status = "Awaiting User Response"
	StatusClosed     Status = "Closed"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusAwaiting, StatusClosed}

// ParsePriority matches p case-insensitively.
func ParsePriority(p string) (Priority, error) {
	for _, q := range Priorities {
		if strings.EqualFold(p, string(q)) {
			return q, nil
		}
	}
	return "", fmt.Errorf("ticket: unknown priority %q", p)
}

// ParseStatus matches s case-insensitively; "in-progress" and "awaiting"
// are accepted as short forms.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return StatusOpen, nil
	case "in progress", "in-progress":
		return StatusInProgress, nil
	case "awaiting user response", "awaiting":
		return StatusAwaiting, nil
	case "closed":
		return StatusClosed, nil
	}
	return "", fmt.Errorf("ticket: unknown status %q", s)
}

// Message is one entry in a ticket conversation.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticket is a support request.
type Ticket struct {
	ID          string
	User        string
	Subject     string
	Description string
	Priority    Priority
	Status      Status
	Pinned      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Messages    []Message
}

// Closed reports whether the ticket is closed.
func (t Ticket) Closed() bool {
	return t.Status == StatusClosed
}

// NewTicket is the input for Store.Create.
type NewTicket struct {
	User        string   `validate:"required,email"`
	Subject     string   `validate:"required,min=3,max=200"`
	Description string   `validate:"required"`
	Priority    Priority `validate:"required,oneof=Low Medium High Urgent"`
}

// Update changes a ticket's status or priority. Nil fields are kept.
type Update struct {
	Status   *Status
	Priority *Priority
}

var (
	// ErrNotFound is returned for an unknown ticket id.
	ErrNotFound = errors.New("ticket: not found")
	// ErrInvalid matches validation failures via errors.Is.
	ErrInvalid = errors.New("ticket: invalid input")
	// ErrPinClosed is returned when pinning a closed ticket.
	ErrPinClosed = errors.New("ticket: closed tickets cannot be pinned")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks n and returns an error wrapping ErrInvalid that names
// each failing field.
func (n NewTicket) Validate() error {
	err := validate.Struct(n)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be an email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
