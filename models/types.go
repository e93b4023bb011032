// ABOUTME: Data models for the correspondence intake engine
// ABOUTME: Defines Client, Interaction, Request, poll messages and change events
package models

import (
	"time"
)

type Client struct {
	ID             int64     `json:"id"`
	CompanyName    string    `json:"company_name"`
	Country        string    `json:"country,omitempty"`
	ContactPerson  string    `json:"contact_person,omitempty"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Website        string    `json:"website,omitempty"`
	Status         string    `json:"status"`
	Score          int       `json:"score"`
	Classification string    `json:"classification"`
	Focus          bool      `json:"focus"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Interaction struct {
	ID           string    `json:"id"`
	ClientID     int64     `json:"client_id"`
	Date         time.Time `json:"date"`
	Channel      string    `json:"channel"`
	MessageType  string    `json:"message_type"`
	Subject      string    `json:"subject,omitempty"`
	Body         string    `json:"body"`
	AppliedDelta int       `json:"applied_delta"`
	ExternalID   string    `json:"external_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Request struct {
	ID            string     `json:"id"`
	ClientID      int64      `json:"client_id"`
	Email         string     `json:"email,omitempty"`
	InteractionID string     `json:"interaction_id,omitempty"`
	RequestType   string     `json:"request_type"`
	Status        string     `json:"status"`
	ReplyStatus   string     `json:"reply_status"`
	CreatedAt     time.Time  `json:"created_at"`
	RepliedAt     *time.Time `json:"replied_at,omitempty"`
}

// ClassificationChange is the persisted form of a band transition.
type ClassificationChange struct {
	ID        string    `json:"id"`
	ClientID  int64     `json:"client_id"`
	OldBand   string    `json:"old_band"`
	NewBand   string    `json:"new_band"`
	OldScore  int       `json:"old_score"`
	NewScore  int       `json:"new_score"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Client status values.
const (
	StatusNew              = "New"
	StatusNoReply          = "No Reply"
	StatusRequestedPrice   = "Requested Price"
	StatusSamplesRequested = "Samples Requested"
	StatusReplied          = "Replied"
)

// Channel values.
const (
	ChannelEmail    = "Email"
	ChannelOutlook  = "Outlook"
	ChannelWhatsApp = "WhatsApp"
	ChannelLinkedIn = "LinkedIn"
	ChannelTelegram = "Telegram"
	ChannelPhone    = "Phone"
	ChannelSMS      = "SMS"
	ChannelOther    = "Other"
)

var Channels = []string{
	ChannelEmail, ChannelOutlook, ChannelWhatsApp, ChannelLinkedIn,
	ChannelTelegram, ChannelPhone, ChannelSMS, ChannelOther,
}

// Message types.
const (
	MessageReply          = "reply"
	MessagePriceRequest   = "price_request"
	MessageSpecsRequest   = "specs_request"
	MessageSamplesRequest = "samples_request"
	MessageVagueReply     = "vague_reply"
	MessageLongIgnore     = "long_ignore"
	MessageFollowup       = "followup"
	MessageNoReply        = "no_reply"
	MessageMeetingRequest = "meeting_request"
	MessageOrderPlaced    = "order_placed"
	MessageNotInterested  = "not_interested"
	MessageOther          = "other"
)

// Intent tags.
const (
	IntentPrice          = "Price Request"
	IntentSample         = "Sample Request"
	IntentSpecs          = "Specs Request"
	IntentMOQ            = "MOQ / Quantity"
	IntentGeneralInquiry = "General Inquiry"
)

// Request lifecycle values.
const (
	RequestOpen   = "open"
	RequestClosed = "closed"
	ReplyPending  = "pending"
	ReplyReplied  = "replied"
)

// IsValidChannel reports whether channel is one of the known channel tags.
func IsValidChannel(channel string) bool {
	for _, c := range Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// IsRequestTier reports whether an intent tag marks an actionable ask.
func IsRequestTier(tag string) bool {
	switch tag {
	case IntentPrice, IntentSample, IntentSpecs, IntentMOQ:
		return true
	}
	return false
}

// StatusForMessageType returns the suggested client status after recording
// a message of the given type. The second result is false when the status
// should be left alone.
func StatusForMessageType(messageType string) (string, bool) {
	switch messageType {
	case MessagePriceRequest:
		return StatusRequestedPrice, true
	case MessageSamplesRequest:
		return StatusSamplesRequested, true
	case MessageReply, MessageSpecsRequest, MessageVagueReply, MessageMeetingRequest, MessageOrderPlaced, MessageNotInterested:
		return StatusReplied, true
	case MessageLongIgnore, MessageNoReply:
		return StatusNoReply, true
	default:
		return "", false
	}
}
