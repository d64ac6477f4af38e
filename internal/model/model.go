// Package model defines the core domain types for the signup allocation engine.
package model

import "time"

// SignupStatus identifies which bucket a signup currently occupies.
type SignupStatus string

const (
	// StatusInQuota means the signup holds a seat in its chosen quota.
	StatusInQuota SignupStatus = "in-quota"
	// StatusInOpenQuota means the signup overflowed into the event-wide open quota.
	StatusInOpenQuota SignupStatus = "in-open-quota"
	// StatusInQueue means the signup is waitlisted.
	StatusInQueue SignupStatus = "in-queue"
)

// Event represents a published event with capacity-limited quotas.
type Event struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Date              *time.Time `json:"date"`
	RegistrationStart *time.Time `json:"registration_start"`
	RegistrationEnd   *time.Time `json:"registration_end"`
	OpenQuotaSize     int        `json:"open_quota_size"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RegistrationOpen reports whether the registration window is open at t.
// Both window edges must be set; a missing edge disables registration.
func (e Event) RegistrationOpen(t time.Time) bool {
	if e.RegistrationStart == nil || e.RegistrationEnd == nil {
		return false
	}
	return !t.Before(*e.RegistrationStart) && !t.After(*e.RegistrationEnd)
}

// Quota is a named, capacity-limited bucket of signups within one event.
// A nil Size means unlimited capacity.
type Quota struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	DisplayOrder int    `json:"display_order"`
	Title        string `json:"title"`
	Size         *int   `json:"size"`
	SignupCount  int    `json:"signup_count,omitempty"`
}

// Question is an organizer-defined form field answered at confirmation time.
type Question struct {
	ID           string   `json:"id"`
	EventID      string   `json:"event_id"`
	DisplayOrder int      `json:"display_order"`
	Question     string   `json:"question"`
	Type         string   `json:"type"` // text, textarea, number, select, checkbox
	Options      []string `json:"options,omitempty"`
	Required     bool     `json:"required"`
	Public       bool     `json:"public"`
}

// Question types.
const (
	QuestionText     = "text"
	QuestionTextarea = "textarea"
	QuestionNumber   = "number"
	QuestionSelect   = "select"
	QuestionCheckbox = "checkbox"
)

// Answer is a registrant's answer to one question.
// Checkbox answers carry multiple selections joined with ";".
type Answer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// Signup is one registration attempt against a quota.
//
// Status and Position are derived state: they cache the allocation
// algorithm's output and are rewritten on every recomputation. A nil
// Status means the signup has never been through a recomputation.
type Signup struct {
	ID          string        `json:"id"`
	QuotaID     string        `json:"quota_id"`
	CreatedAt   time.Time     `json:"created_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at"`
	Status      *SignupStatus `json:"status"`
	Position    *int          `json:"position"`
	Email       *string       `json:"email"`
	FirstName   *string       `json:"first_name"`
	LastName    *string       `json:"last_name"`
	NamePublic  bool          `json:"name_public"`
	Language    string        `json:"language"`

	// QuotaSize is the chosen quota's capacity, joined in by the store
	// so the allocation pass needs no second lookup. Nil means unlimited.
	QuotaSize *int `json:"-"`
}

// Confirmed reports whether the signup has been confirmed.
func (s *Signup) Confirmed() bool {
	return s.ConfirmedAt != nil
}

// Assignment is the allocation algorithm's verdict for one signup.
type Assignment struct {
	SignupID string       `json:"id"`
	Status   SignupStatus `json:"status"`
	Position int          `json:"position"`
}

// CreateEventRequest is the payload for publishing a new event.
type CreateEventRequest struct {
	Title             string                  `json:"title"`
	Date              *time.Time              `json:"date"`
	RegistrationStart *time.Time              `json:"registration_start"`
	RegistrationEnd   *time.Time              `json:"registration_end"`
	OpenQuotaSize     int                     `json:"open_quota_size"`
	Quotas            []CreateQuotaRequest    `json:"quotas"`
	Questions         []CreateQuestionRequest `json:"questions"`
}

// CreateQuotaRequest describes one quota of a new event.
type CreateQuotaRequest struct {
	Title string `json:"title"`
	Size  *int   `json:"size"`
}

// CreateQuestionRequest describes one question of a new event.
type CreateQuestionRequest struct {
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
	Public   bool     `json:"public"`
}

// CreateSignupRequest is the payload for grabbing a provisional hold.
type CreateSignupRequest struct {
	QuotaID string `json:"quota_id"`
}

// CreatedSignup is returned from signup creation: the new id, the
// capability token proving ownership, and the freshly computed placement.
type CreatedSignup struct {
	ID       string        `json:"id"`
	Token    string        `json:"token"`
	Status   *SignupStatus `json:"status"`
	Position *int          `json:"position"`
}

// ConfirmSignupRequest is the payload for confirming or editing a signup.
type ConfirmSignupRequest struct {
	Email      *string  `json:"email"`
	FirstName  *string  `json:"first_name"`
	LastName   *string  `json:"last_name"`
	NamePublic bool     `json:"name_public"`
	Language   string   `json:"language"`
	Answers    []Answer `json:"answers"`
}

// EditCapacityRequest is the payload for resizing an event's capacity.
// AllowDemotion authorizes moving already-placed signups into the queue.
type EditCapacityRequest struct {
	OpenQuotaSize *int                 `json:"open_quota_size"`
	Quotas        []QuotaResizeRequest `json:"quotas"`
	AllowDemotion bool                 `json:"allow_demotion"`
}

// QuotaResizeRequest resizes or removes one existing quota.
type QuotaResizeRequest struct {
	ID     string `json:"id"`
	Size   *int   `json:"size"`
	Remove bool   `json:"remove"`
}

// EventDetails bundles an event with its quotas and questions.
type EventDetails struct {
	Event     Event      `json:"event"`
	Quotas    []Quota    `json:"quotas"`
	Questions []Question `json:"questions"`
}

// ErrorResponse is a standard JSON error envelope. Count is populated
// only for the demotion-guard conflict so the UI can ask for confirmation.
type ErrorResponse struct {
	Error string `json:"error"`
	Count *int   `json:"count,omitempty"`
}
