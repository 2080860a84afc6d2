package domain

import "time"

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// Session is one participant's presence record in one stream. Its
// existence in the session cache is the sole source of truth for whether
// the participant is counted as present.
type Session struct {
	StreamID StreamID
	UserID   UserID
	UID      uint32
	Role     Role
	JoinedAt time.Time
}

// StreamSpec carries owner-supplied parameters for stream creation.
type StreamSpec struct {
	Title            string
	Visibility       Visibility
	Password         string
	AllowCoHosts     bool
	CoHosts          []UserID
	MaxViewers       int
	EnableChat       bool
	EnableRecording  bool
	TicketPriceCents int
	ScheduledStart   *time.Time
	ScheduledEnd     *time.Time
}

// StreamPatch carries partial updates; nil fields are left untouched.
type StreamPatch struct {
	Title            *string
	Visibility       *Visibility
	Password         *string
	AllowCoHosts     *bool
	CoHosts          *[]UserID
	MaxViewers       *int
	EnableChat       *bool
	EnableRecording  *bool
	TicketPriceCents *int
	ScheduledStart   *time.Time
	ScheduledEnd     *time.Time
}

// JoinRequest carries the caller's join parameters.
type JoinRequest struct {
	Password      string
	AsBroadcaster bool
}

// JoinGrant is the result of a successful join: issued credentials plus
// the identity the participant must use on the channel.
type JoinGrant struct {
	Stream   *Stream
	UID      uint32
	Role     Role
	RTCToken string
	RTMToken string
}
