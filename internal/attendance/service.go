package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the classification of one arrival against the session start.
type Status string

const (
	StatusOnTime Status = "On Time"
	StatusLate   Status = "Late"
)

// Session is one chapter meeting's attendance-taking window.
type Session struct {
	ID        string    `json:"id"`
	OfficerID string    `json:"officer_id"`
	School    string    `json:"school"`
	StartAt   time.Time `json:"start_at"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is one person's check-in within a session.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	ArrivalTime string    `json:"arrival_time"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is the live tally for a session.
type Summary struct {
	Total  int `json:"total"`
	OnTime int `json:"on_time"`
	Late   int `json:"late"`
}

// Owner identifies who a session is created and queried for.
type Owner struct {
	OfficerID string
	School    string
}

var (
	ErrMissingStartTime = errors.New("start time required")
	ErrBadStartTime     = errors.New("start time must be HH:MM")
	ErrMissingName      = errors.New("first and last name required")
	ErrBadArrivalTime   = errors.New("arrival time must be HH:MM")
	ErrAlreadyCheckedIn = errors.New("already checked in")
	ErrNoActiveSession  = errors.New("no active session")
)

// IsValidation reports whether err is a malformed-input error the caller
// should re-prompt for rather than surface as a failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingStartTime) ||
		errors.Is(err, ErrBadStartTime) ||
		errors.Is(err, ErrMissingName) ||
		errors.Is(err, ErrBadArrivalTime)
}

// Store is the persistence boundary for sessions and records.
type Store interface {
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, officerID string) ([]Session, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, id string) (Record, error)
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
}

// Service coordinates session starts, check-ins and classification.
type Service struct {
	store Store
	grace time.Duration
	now   func() time.Time
}

// NewService creates a service backed by a store. grace is the allowance
// after the declared start within which an arrival still counts as on time.
func NewService(store Store, grace time.Duration) *Service {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	return &Service{store: store, grace: grace, now: time.Now}
}

// parseClock parses an "HH:MM" wall-clock string.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// StartSession fixes the official start instant from the declared HH:MM and
// today's date, persists the session and returns it. The instant is never
// recalculated afterwards.
func (s *Service) StartSession(ctx context.Context, owner Owner, startTime string) (Session, error) {
	if strings.TrimSpace(startTime) == "" {
		return Session{}, ErrMissingStartTime
	}
	hh, mm, err := parseClock(startTime)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %q", ErrBadStartTime, startTime)
	}
	now := s.now()
	startAt := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	sess := Session{
		OfficerID: owner.OfficerID,
		School:    owner.School,
		StartAt:   startAt,
		Date:      now.Format("2006-01-02"),
	}
	return s.store.InsertSession(ctx, sess)
}

// Classify labels an arrival at hour:minute against the session start.
// The arrival is placed on the session's own calendar day; anything up to
// grace past the start is on time, with no lower bound for early arrivals.
func (s *Service) Classify(sess *Session, hour, minute int) Status {
	if sess == nil {
		return StatusOnTime
	}
	start := sess.StartAt
	arrival := time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, start.Location())
	if arrival.Sub(start) <= s.grace {
		return StatusOnTime
	}
	return StatusLate
}

// CheckIn validates a submission against the session and its existing
// records, classifies the arrival and persists a new record. Checks run in
// a fixed order: name presence, duplicate, active session, arrival format.
func (s *Service) CheckIn(ctx context.Context, sess *Session, firstName, lastName, arrivalTime string, existing []Record) (Record, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return Record{}, ErrMissingName
	}
	for _, rec := range existing {
		if strings.EqualFold(rec.FirstName, firstName) && strings.EqualFold(rec.LastName, lastName) {
			return Record{}, ErrAlreadyCheckedIn
		}
	}
	if sess == nil {
		return Record{}, ErrNoActiveSession
	}
	hh, mm, err := parseClock(arrivalTime)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q", ErrBadArrivalTime, arrivalTime)
	}
	rec := Record{
		SessionID:   sess.ID,
		FirstName:   firstName,
		LastName:    lastName,
		ArrivalTime: strings.TrimSpace(arrivalTime),
		Status:      s.Classify(sess, hh, mm),
	}
	return s.store.InsertRecord(ctx, rec)
}

// Summarize folds a record set into its tally. Empty input yields zeros.
func Summarize(records []Record) Summary {
	sum := Summary{Total: len(records)}
	for _, rec := range records {
		if rec.Status == StatusOnTime {
			sum.OnTime++
		}
	}
	sum.Late = sum.Total - sum.OnTime
	return sum
}
