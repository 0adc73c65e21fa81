package camera

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollgrid/internal/broker"
	"tollgrid/internal/logger"
	"tollgrid/internal/messages"
	"tollgrid/internal/topics"
)

var plateFormat = regexp.MustCompile(`^[A-Z]{2}[1-9][0-9]{2}[A-Z]{2}$`)

type capture struct {
	topic    string
	payloads []messages.CameraResponse
}

func (c *capture) handle(ctx context.Context, topic string, payload []byte) error {
	c.topic = topic
	var resp messages.CameraResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return err
	}
	c.payloads = append(c.payloads, resp)
	return nil
}

func newTestResponder(t *testing.T) (*Responder, *broker.MemoryBus, *capture) {
	t.Helper()

	bus := broker.NewMemoryBus(logger.NopLogger())
	responder := NewResponder(bus, 42, logger.NopLogger())
	require.NoError(t, responder.Subscribe())

	sink := &capture{}
	require.NoError(t, bus.Subscribe("highway/+/+/+/responses", sink.handle))
	return responder, bus, sink
}

func request(t *testing.T, bus *broker.MemoryBus, topic string, req messages.CameraRequest) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), topic, body))
}

func TestRespondsWithPlate(t *testing.T) {
	_, bus, sink := newTestResponder(t)

	request(t, bus, topics.CameraRequests("TB-NORTH-1", topics.DirectionEntry), messages.CameraRequest{
		Type:          messages.TypeCameraRequest,
		CorrelationID: "corr-1",
		Channel:       string(topics.ChannelTelepass),
		PassID:        "OBU-001",
	})

	require.Len(t, sink.payloads, 1)
	resp := sink.payloads[0]

	assert.Equal(t, topics.Responses("TB-NORTH-1", topics.DirectionEntry, topics.ChannelTelepass), sink.topic)
	assert.Equal(t, messages.TypeCameraResponse, resp.Type)
	assert.Equal(t, "corr-1", resp.CorrelationID)
	assert.Equal(t, "entry", resp.Direction)
	assert.Equal(t, "OBU-001", resp.PassID)
	assert.Regexp(t, plateFormat, resp.Plate)
	assert.GreaterOrEqual(t, resp.Confidence, 0.90)
	assert.Less(t, resp.Confidence, 0.99)
}

func TestInfersChannelFromPassID(t *testing.T) {
	tests := []struct {
		name    string
		passID  string
		channel topics.Channel
	}{
		{name: "ticket prefix means manual", passID: "TCK-AB12CD34", channel: topics.ChannelManual},
		{name: "anything else means telepass", passID: "OBU-001", channel: topics.ChannelTelepass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bus, sink := newTestResponder(t)

			request(t, bus, topics.CameraRequests("TB-NORTH-1", topics.DirectionEntry), messages.CameraRequest{
				Type:          messages.TypeCameraPlateRequest,
				CorrelationID: "corr-1",
				PassID:        tt.passID,
			})

			require.Len(t, sink.payloads, 1)
			assert.Equal(t, topics.Responses("TB-NORTH-1", topics.DirectionEntry, tt.channel), sink.topic)
		})
	}
}

func TestDropsInvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		req   messages.CameraRequest
	}{
		{
			name:  "missing correlation id",
			topic: topics.CameraRequests("TB-NORTH-1", topics.DirectionEntry),
			req:   messages.CameraRequest{Type: messages.TypeCameraRequest, PassID: "OBU-001"},
		},
		{
			name:  "unknown type",
			topic: topics.CameraRequests("TB-NORTH-1", topics.DirectionEntry),
			req:   messages.CameraRequest{Type: "SOMETHING_ELSE", CorrelationID: "corr-1"},
		},
		{
			name:  "camera channel cannot be the reply channel",
			topic: topics.CameraRequests("TB-NORTH-1", topics.DirectionEntry),
			req:   messages.CameraRequest{Type: messages.TypeCameraRequest, CorrelationID: "corr-1", Channel: "camera"},
		},
		{
			name:  "bad direction segment",
			topic: "highway/TB-NORTH-1/sideways/camera/requests",
			req:   messages.CameraRequest{Type: messages.TypeCameraRequest, CorrelationID: "corr-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bus, sink := newTestResponder(t)
			request(t, bus, tt.topic, tt.req)
			assert.Empty(t, sink.payloads)
		})
	}
}

func TestSeededSequenceIsReproducible(t *testing.T) {
	run := func() []string {
		_, bus, sink := newTestResponder(t)
		for i := 0; i < 5; i++ {
			request(t, bus, topics.CameraRequests("TB-NORTH-1", topics.DirectionExit), messages.CameraRequest{
				Type:          messages.TypeCameraRequest,
				CorrelationID: "corr",
				PassID:        "OBU-001",
			})
		}
		plates := make([]string, 0, len(sink.payloads))
		for _, p := range sink.payloads {
			plates = append(plates, p.Plate)
		}
		return plates
	}

	first := run()
	second := run()
	require.Len(t, first, 5)
	assert.Equal(t, first, second)
}
