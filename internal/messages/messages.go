// Package messages defines the closed set of message bodies exchanged on the
// bus and the decoding rules that normalize them, legacy field fallbacks
// included. Nothing outside this package inspects raw payloads.
package messages

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tollgrid/internal/topics"
)

// Command types.
const (
	TypeEntryManualCommand   = "ENTRY_MANUAL_COMMAND"
	TypeEntryTelepassCommand = "ENTRY_TELEPASS_COMMAND"
	TypeExitManualCommand    = "EXIT_MANUAL_COMMAND"
	TypeExitTelepassCommand  = "EXIT_TELEPASS_COMMAND"
	TypeInsertPayment        = "INSERT_PAYMENT"

	// Aliases still emitted by older UIs.
	TypeRequestEntry = "REQUEST_ENTRY"
	TypeRequestExit  = "REQUEST_EXIT"
)

// Request/response types.
const (
	TypeCameraRequest      = "CAMERA_REQUEST"
	TypeCameraPlateRequest = "CAMERA_PLATE_REQUEST"
	TypeCameraResponse     = "CAMERA_RESPONSE"
	TypeCameraPlateResp    = "CAMERA_PLATE_RESPONSE"
	TypeTollPriceRequest   = "TOLLPRICE_REQUEST"
	TypeTollPriceResponse  = "TOLLPRICE_RESPONSE"
)

// Domain event types.
const (
	TypeEntryAccepted = "ENTRY_ACCEPTED"
	TypeExitCompleted = "EXIT_COMPLETED"
)

// State event types, published for UI observers.
const (
	TypeEntryPending     = "ENTRY_PENDING"
	TypeEntryAcceptedUI  = "ENTRY_ACCEPTED_UI"
	TypeEntryRejected    = "ENTRY_REJECTED"
	TypeExitPendingPrice = "EXIT_PENDING_PRICE"
	TypeExitRejected     = "EXIT_REJECTED"
	TypeRequestPayment   = "REQUEST_PAYMENT"
	TypePaymentAccepted  = "PAYMENT_ACCEPTED"
)

// Rejection reasons carried on state events.
const (
	ReasonNoActiveSession      = "NO_ACTIVE_SESSION"
	ReasonCameraTimeout        = "CAMERA_RESPONSE_TIMEOUT"
	ReasonPriceResponseTimeout = "PRICE_RESPONSE_TIMEOUT"
)

// TicketPrefix marks manual pass ids; everything else is a telepass id.
const TicketPrefix = "TCK-"

type Command struct {
	Type        string `json:"type"`
	TicketID    string `json:"ticketId,omitempty"`
	TelepassID  string `json:"telepassId,omitempty"`
	PassID      string `json:"passId,omitempty"` // legacy
	AmountCents *int   `json:"amountCents,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type CameraRequest struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
	Direction     string `json:"direction,omitempty"`
	Channel       string `json:"channel,omitempty"`
	PassID        string `json:"passId,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

type CameraResponse struct {
	Type          string  `json:"type"`
	CorrelationID string  `json:"correlationId"`
	Plate         string  `json:"plate"`
	Confidence    float64 `json:"confidence,omitempty"`
	Direction     string  `json:"direction,omitempty"`
	PassID        string  `json:"passId,omitempty"` // legacy
	Timestamp     string  `json:"timestamp,omitempty"`
}

type TollPriceRequest struct {
	Type             string `json:"type"`
	CorrelationID    string `json:"correlationId"`
	ReplyTopic       string `json:"replyTopic"`
	EntryTollboothID string `json:"entryTollboothId"`
	ExitTollboothID  string `json:"exitTollboothId"`
	TicketID         string `json:"ticketId,omitempty"`
	TelepassID       string `json:"telepassId,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
}

type TollPriceResponse struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
	AmountCents   *int   `json:"amountCents"`
	Currency      string `json:"currency,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// Event is a domain event consumed by the ledger (ENTRY_ACCEPTED,
// EXIT_COMPLETED).
type Event struct {
	Type             string `json:"type"`
	Plate            string `json:"plate,omitempty"`
	TicketID         string `json:"ticketId,omitempty"`
	TelepassID       string `json:"telepassId,omitempty"`
	EntryTollboothID string `json:"entryTollboothId,omitempty"`
	AmountCents      *int   `json:"amountCents,omitempty"`
	Paid             *bool  `json:"paid,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
}

// StateEvent is published for observers only; nothing in the saga consumes it.
type StateEvent struct {
	Type        string `json:"type"`
	PassID      string `json:"passId,omitempty"`
	Plate       string `json:"plate,omitempty"`
	Reason      string `json:"reason,omitempty"`
	AmountCents *int   `json:"amountCents,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func Encode(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return body, nil
}

// Now is the wire form of the current instant.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ParseTimestamp is lenient: an absent or unparsable timestamp resolves to
// the time of receipt, never to a failure.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}

// NewTicketID synthesizes a manual ticket id: TCK- plus 8 uppercase hex
// characters.
func NewTicketID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return TicketPrefix + strings.ToUpper(raw[:8])
}

// NewCorrelationID mints a per-request unique token.
func NewCorrelationID() string {
	return uuid.New().String()
}

// InferChannel recovers the lane technology from the pass id shape when a
// message omits the channel.
func InferChannel(passID string) topics.Channel {
	if strings.HasPrefix(passID, TicketPrefix) {
		return topics.ChannelManual
	}
	return topics.ChannelTelepass
}

func IntPtr(v int) *int    { return &v }
func BoolPtr(v bool) *bool { return &v }
