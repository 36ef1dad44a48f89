package schedule

import (
	"strings"
	"time"

	"clipflow/internal/fault"
	"clipflow/internal/recur"
)

// Status is the schedule lifecycle state. failed is reserved for
// validation/config faults; delivery failures never set it.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusPaused, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fault.Validation("unknown status %q", s)
	}
}

// Recipient is who the notification goes to.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Schedule is a recurring (or one-shot) email notification rule referencing
// a transcoded asset.
type Schedule struct {
	ID      string `json:"id"`
	AssetID string `json:"asset_id"`

	Recipient  Recipient `json:"recipient"`
	SenderName string    `json:"sender_name,omitempty"`

	// Recurrence rule. ScheduledAt is the anchor instant; every later
	// occurrence derives from it, never from last_sent.
	Frequency   recur.Frequency `json:"frequency"`
	CustomSpec  string          `json:"custom_spec,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Timezone    string          `json:"timezone,omitempty"`

	// Message content.
	Subject          string `json:"subject,omitempty"`
	Message          string `json:"message,omitempty"`
	Template         string `json:"template,omitempty"`
	IncludeThumbnail bool   `json:"include_thumbnail,omitempty"`
	IncludeDuration  bool   `json:"include_duration,omitempty"`

	Status    Status `json:"status"`
	SendCount int    `json:"send_count"`

	// LastSent is zero until the first fire attempt. AutoExpire zero means
	// the schedule never expires.
	LastSent   time.Time `json:"last_sent,omitzero"`
	NextSend   time.Time `json:"next_send,omitzero"`
	AutoExpire time.Time `json:"auto_expire,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rule assembles the recurrence rule from the schedule's fields.
func (s *Schedule) Rule() recur.Rule {
	return recur.Rule{
		Frequency:  s.Frequency,
		CustomSpec: s.CustomSpec,
		Reference:  s.ScheduledAt,
		Timezone:   s.Timezone,
	}
}

// Expired reports whether auto_expire is set and has passed.
func (s *Schedule) Expired(now time.Time) bool {
	return !s.AutoExpire.IsZero() && now.After(s.AutoExpire)
}

func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// CreateRequest carries all fields for a new schedule.
type CreateRequest struct {
	AssetID          string    `json:"asset_id"`
	RecipientEmail   string    `json:"recipient_email"`
	RecipientName    string    `json:"recipient_name"`
	SenderName       string    `json:"sender_name"`
	Frequency        string    `json:"frequency"`
	CustomSpec       string    `json:"custom_spec"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Timezone         string    `json:"timezone"`
	Subject          string    `json:"subject"`
	Message          string    `json:"message"`
	Template         string    `json:"template"`
	IncludeThumbnail bool      `json:"include_thumbnail"`
	IncludeDuration  bool      `json:"include_duration"`
	AutoExpire       time.Time `json:"auto_expire"`
}

// UpdateRequest replaces only the fields that are set. Changing any
// recurrence field recomputes next_send and replaces the pending timer.
type UpdateRequest struct {
	RecipientEmail   *string    `json:"recipient_email"`
	RecipientName    *string    `json:"recipient_name"`
	SenderName       *string    `json:"sender_name"`
	Frequency        *string    `json:"frequency"`
	CustomSpec       *string    `json:"custom_spec"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	Timezone         *string    `json:"timezone"`
	Subject          *string    `json:"subject"`
	Message          *string    `json:"message"`
	Template         *string    `json:"template"`
	IncludeThumbnail *bool      `json:"include_thumbnail"`
	IncludeDuration  *bool      `json:"include_duration"`
	AutoExpire       *time.Time `json:"auto_expire"`
	Status           *string    `json:"status"`
}

func (r UpdateRequest) touchesRecurrence() bool {
	return r.Frequency != nil || r.CustomSpec != nil || r.ScheduledAt != nil || r.Timezone != nil
}
