package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the transport an inbound message arrived on.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelMMS      Channel = "mms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

// HasSession reports whether the channel is phone-addressed and therefore
// uses conversation sessions and the "switch to <code>" command.
func (c Channel) HasSession() bool {
	switch c {
	case ChannelSMS, ChannelMMS, ChannelWhatsApp, ChannelVoice:
		return true
	default:
		return false
	}
}

// MessageStatus is the review lifecycle of an inbound message.
// pending -> applied | dismissed, exactly once.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusApplied   MessageStatus = "applied"
	StatusDismissed MessageStatus = "dismissed"
)

// IsTerminal reports whether the status can no longer change.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusApplied || s == StatusDismissed
}

// InboundMessage is the stored record of one received message.
// TripID is nil until (or unless) the message is routed to a trip.
// Extracted holds only the facts that still need review once auto-apply ran.
type InboundMessage struct {
	ID                uuid.UUID       `json:"id"`
	TripID            *uuid.UUID      `json:"trip_id,omitempty"`
	Channel           Channel         `json:"channel"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	Sender            string          `json:"sender"`
	SenderMemberID    *uuid.UUID      `json:"sender_member_id,omitempty"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"`
	Text              string          `json:"text"`
	Extracted         *Extraction     `json:"extracted_data,omitempty"`
	ExtractionError   *string         `json:"extraction_error,omitempty"`
	Status            MessageStatus   `json:"status"`
	AutoApplied       []AppliedItem   `json:"auto_applied"`
	ReplySent         bool            `json:"reply_sent"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
