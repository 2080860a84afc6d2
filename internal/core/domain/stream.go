package domain

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type StreamID string
type UserID string

type StreamStatus string

const (
	StatusPreparing StreamStatus = "preparing"
	StatusLive      StreamStatus = "live"
	StatusEnded     StreamStatus = "ended"
)

// transitions is the closed set of legal status moves. preparing -> ended
// covers streams cancelled before ever going live.
var transitions = map[StreamStatus][]StreamStatus{
	StatusPreparing: {StatusLive, StatusEnded},
	StatusLive:      {StatusEnded},
	StatusEnded:     {},
}

// CanTransition reports whether moving a stream from one status to another
// is legal. It is the single validation point for the state machine; the
// repository compare-and-swap enforces it atomically against the store.
func CanTransition(from, to StreamStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityPremium  Visibility = "premium"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityPremium:
		return true
	}
	return false
}

type RecordingStatus string

const (
	RecordingNone    RecordingStatus = "none"
	RecordingActive  RecordingStatus = "recording"
	RecordingStopped RecordingStatus = "stopped"
)

// RecordingFile is one artifact produced by the cloud recording backend
// after a recording is stopped.
type RecordingFile struct {
	FileName   string
	TrackType  string
	SliceStart int64
}

type Stream struct {
	ID               StreamID
	ChannelName      string
	BroadcasterUID   uint32
	OwnerID          UserID
	Title            string
	Visibility       Visibility
	PasswordHash     string
	AllowCoHosts     bool
	CoHosts          []UserID
	MaxViewers       int
	CurrentViewers   int
	EnableChat       bool
	EnableRecording  bool
	TicketPriceCents int

	RecordingStatus     RecordingStatus
	RecordingResourceID string
	RecordingSessionID  string
	RecordingFiles      []RecordingFile

	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time

	Status    StreamStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCoHost reports whether the given user holds a co-host grant.
func (s *Stream) IsCoHost(userID UserID) bool {
	for _, id := range s.CoHosts {
		if id == userID {
			return true
		}
	}
	return false
}

// Joinable reports whether participants may join in the current status.
func (s *Stream) Joinable() bool {
	return s.Status == StatusPreparing || s.Status == StatusLive
}

// HashPassword produces a one-way hash suitable for PasswordHash.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a candidate password against the stored hash.
// bcrypt comparison is constant-time.
func (s *Stream) CheckPassword(plain string) bool {
	if s.PasswordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(plain)) == nil
}
