// Package camera implements the plate-recognition responder. It answers
// camera requests from any tollbooth with a synthesized plate read; there is
// no per-vehicle state, every request stands alone.
package camera

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"tollgrid/internal/broker"
	"tollgrid/internal/logger"
	"tollgrid/internal/messages"
	"tollgrid/internal/topics"
	"tollgrid/pkg/logging"
	"tollgrid/pkg/metrics"
)

const serviceName = "camera-service"

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Responder replies to plate requests on behalf of every tollbooth camera.
type Responder struct {
	bus    broker.Client
	logger logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResponder builds a responder with a dedicated random source. A fixed
// seed makes plate sequences reproducible in tests and demos.
func NewResponder(bus broker.Client, seed int64, log logger.Logger) *Responder {
	return &Responder{
		bus:    bus,
		logger: log,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Subscribe registers the single wildcard subscription covering camera
// request topics of every tollbooth and direction.
func (r *Responder) Subscribe() error {
	return r.bus.Subscribe(topics.FilterCameraRequests, r.HandleRequest)
}

// HandleRequest answers one camera request. Anything malformed is dropped
// with a counter bump; the requester's correlation TTL covers the silence.
func (r *Responder) HandleRequest(ctx context.Context, topic string, payload []byte) error {
	ctx = logging.WithTopic(ctx, topic)

	addr, err := topics.Parse(topic)
	if err != nil {
		r.drop(ctx, "invalid_topic", "error", err)
		return nil
	}
	if addr.Channel != topics.ChannelCamera || addr.Leaf != topics.LeafRequests {
		return nil
	}
	if addr.Direction != topics.DirectionEntry && addr.Direction != topics.DirectionExit {
		r.drop(ctx, "invalid_direction", "direction", addr.Direction)
		return nil
	}

	req, err := messages.DecodeCameraRequest(payload)
	if err != nil {
		r.drop(ctx, "malformed_request", "error", err)
		return nil
	}
	if req.Type != messages.TypeCameraRequest && req.Type != messages.TypeCameraPlateRequest {
		return nil
	}
	if req.CorrelationID == "" {
		r.drop(ctx, "missing_correlation_id", "type", req.Type)
		return nil
	}

	ch := topics.Channel(req.Channel)
	if ch == "" {
		ch = messages.InferChannel(req.PassID)
	}
	if ch != topics.ChannelManual && ch != topics.ChannelTelepass {
		r.drop(ctx, "invalid_channel", "channel", req.Channel)
		return nil
	}

	plate, confidence := r.recognize()

	resp := messages.CameraResponse{
		Type:          messages.TypeCameraResponse,
		CorrelationID: req.CorrelationID,
		Plate:         plate,
		Confidence:    confidence,
		Direction:     string(addr.Direction),
		PassID:        req.PassID,
		Timestamp:     messages.Now(),
	}
	body, err := messages.Encode(resp)
	if err != nil {
		r.logger.ErrorwCtx(ctx, "Failed to encode camera response", "error", err)
		return nil
	}

	replyTopic := topics.Responses(addr.TollboothID, addr.Direction, ch)
	if err := r.bus.Publish(ctx, replyTopic, body); err != nil {
		r.logger.ErrorwCtx(ctx, "Failed to publish camera response",
			"publish_topic", replyTopic,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		return nil
	}

	metrics.CameraResponsesTotal.WithLabelValues(string(addr.Direction), string(ch)).Inc()
	r.logger.DebugwCtx(ctx, "Plate recognized",
		"plate", plate,
		"confidence", confidence,
		"correlation_id", req.CorrelationID,
	)
	return nil
}

// recognize synthesizes a plate in the national format: two letters, a
// three-digit number from 100 to 999, two letters.
func (r *Responder) recognize() (string, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plate := fmt.Sprintf("%c%c%d%c%c",
		letters[r.rng.Intn(len(letters))],
		letters[r.rng.Intn(len(letters))],
		100+r.rng.Intn(900),
		letters[r.rng.Intn(len(letters))],
		letters[r.rng.Intn(len(letters))],
	)
	confidence := 0.90 + r.rng.Float64()*0.09
	return plate, confidence
}

func (r *Responder) drop(ctx context.Context, reason string, keysAndValues ...interface{}) {
	metrics.MessagesDroppedTotal.WithLabelValues(serviceName, reason).Inc()
	args := append([]interface{}{"reason", reason}, keysAndValues...)
	r.logger.DebugwCtx(ctx, "Message dropped", args...)
}
