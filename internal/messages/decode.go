package messages

import (
	"encoding/json"
	"fmt"

	"tollgrid/internal/topics"
)

func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("command without type")
	}
	return cmd, nil
}

func DecodeCameraRequest(payload []byte) (CameraRequest, error) {
	var req CameraRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return CameraRequest{}, fmt.Errorf("failed to decode camera request: %w", err)
	}
	return req, nil
}

func DecodeCameraResponse(payload []byte) (CameraResponse, error) {
	var resp CameraResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return CameraResponse{}, fmt.Errorf("failed to decode camera response: %w", err)
	}
	return resp, nil
}

func DecodeTollPriceRequest(payload []byte) (TollPriceRequest, error) {
	var req TollPriceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return TollPriceRequest{}, fmt.Errorf("failed to decode toll price request: %w", err)
	}
	return req, nil
}

func DecodeTollPriceResponse(payload []byte) (TollPriceResponse, error) {
	var resp TollPriceResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return TollPriceResponse{}, fmt.Errorf("failed to decode toll price response: %w", err)
	}
	return resp, nil
}

func DecodeEvent(payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return evt, nil
}

// IsEntryCommand reports whether the command type is an entry request valid
// on the given channel, legacy alias included.
func (c Command) IsEntryCommand(ch topics.Channel) bool {
	switch ch {
	case topics.ChannelManual:
		return c.Type == TypeEntryManualCommand || c.Type == TypeRequestEntry
	case topics.ChannelTelepass:
		return c.Type == TypeEntryTelepassCommand || c.Type == TypeRequestEntry
	default:
		return false
	}
}

// IsExitCommand reports whether the command type is an exit request valid on
// the given channel, legacy alias included.
func (c Command) IsExitCommand(ch topics.Channel) bool {
	switch ch {
	case topics.ChannelManual:
		return c.Type == TypeExitManualCommand || c.Type == TypeRequestExit
	case topics.ChannelTelepass:
		return c.Type == TypeExitTelepassCommand || c.Type == TypeRequestExit
	default:
		return false
	}
}

// ExitPassID resolves the pass id an exit command refers to. Manual prefers
// the ticket id, telepass prefers the telepass id; both fall back to the
// legacy generic field.
func (c Command) ExitPassID(ch topics.Channel) string {
	switch ch {
	case topics.ChannelManual:
		if c.TicketID != "" {
			return c.TicketID
		}
		return c.PassID
	case topics.ChannelTelepass:
		if c.TelepassID != "" {
			return c.TelepassID
		}
		return c.PassID
	default:
		return ""
	}
}

// PaymentPassID resolves the pass id of an INSERT_PAYMENT command.
func (c Command) PaymentPassID() string {
	if c.TicketID != "" {
		return c.TicketID
	}
	return c.PassID
}

// PassIDForChannel picks the channel-specific identifier field of an event.
func (e Event) PassIDForChannel(ch topics.Channel) string {
	switch ch {
	case topics.ChannelManual:
		return e.TicketID
	case topics.ChannelTelepass:
		return e.TelepassID
	default:
		return ""
	}
}
