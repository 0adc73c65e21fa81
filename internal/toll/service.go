// Package toll implements the per-tollbooth orchestrator: it drives entry
// and exit commands through camera and pricing round trips to completion,
// holding the only mutable state of the saga (sessions and outstanding
// correlations).
package toll

import (
	"context"
	"time"

	"tollgrid/internal/broker"
	"tollgrid/internal/logger"
	"tollgrid/internal/messages"
	"tollgrid/internal/topics"
	"tollgrid/pkg/logging"
	"tollgrid/pkg/metrics"
)

const serviceName = "toll-service"

// Orchestrator owns one tollbooth. Traffic for other tollbooths seen on the
// wildcard subscriptions is dropped here, not at the parser.
type Orchestrator struct {
	bus           broker.Client
	sessions      *SessionStore
	cameraPending *Tracker
	pricePending  *Tracker
	tollID        string
	logger        logger.Logger
}

// NewOrchestrator wires an orchestrator for one tollbooth id. The session
// store is injected so tests can observe it; the correlation trackers belong
// to the orchestrator because their expiry handlers publish on its topics.
func NewOrchestrator(bus broker.Client, tollID string, sessions *SessionStore, correlationTTL time.Duration, log logger.Logger) *Orchestrator {
	o := &Orchestrator{
		bus:      bus,
		sessions: sessions,
		tollID:   tollID,
		logger:   log,
	}
	o.cameraPending = NewTracker("camera", correlationTTL, o.onCameraExpired)
	o.pricePending = NewTracker("tollprice", correlationTTL, o.onPriceExpired)
	return o
}

// Subscribe registers every subscription the orchestrator needs. The command
// filters are wildcarded across tollbooths; the response topics are fixed
// because this orchestrator chooses its own reply addresses.
func (o *Orchestrator) Subscribe() error {
	subs := []struct {
		filter  string
		handler broker.HandlerFunc
	}{
		{topics.FilterEntryCommands, o.HandleCommand},
		{topics.FilterExitCommands, o.HandleCommand},
		{topics.Responses(o.tollID, topics.DirectionEntry, topics.ChannelManual), o.HandleCameraResponse},
		{topics.Responses(o.tollID, topics.DirectionEntry, topics.ChannelTelepass), o.HandleCameraResponse},
		{topics.Responses(o.tollID, topics.DirectionExit, topics.ChannelManual), o.HandleTollPriceResponse},
		{topics.Responses(o.tollID, topics.DirectionExit, topics.ChannelTelepass), o.HandleTollPriceResponse},
	}

	for _, sub := range subs {
		if err := o.bus.Subscribe(sub.filter, sub.handler); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the correlation expiry sweeps until the context is canceled.
func (o *Orchestrator) Start(ctx context.Context) error {
	go o.cameraPending.Start(ctx)
	go o.pricePending.Start(ctx)
	<-ctx.Done()
	return ctx.Err()
}

// HandleCommand dispatches a UI-originated command to the entry or exit flow.
func (o *Orchestrator) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	ctx = logging.WithTopic(ctx, topic)

	addr, err := topics.Parse(topic)
	if err != nil {
		o.drop(ctx, "invalid_topic", "error", err)
		return nil
	}
	if addr.Leaf != topics.LeafCommands || addr.TollboothID != o.tollID {
		return nil
	}

	cmd, err := messages.DecodeCommand(payload)
	if err != nil {
		o.drop(ctx, "malformed_command", "error", err)
		return nil
	}

	switch addr.Direction {
	case topics.DirectionEntry:
		o.handleEntryCommand(ctx, addr.Channel, cmd)
	case topics.DirectionExit:
		o.handleExitCommand(ctx, addr.Channel, cmd)
	}
	return nil
}

func (o *Orchestrator) handleEntryCommand(ctx context.Context, ch topics.Channel, cmd messages.Command) {
	if !cmd.IsEntryCommand(ch) {
		o.drop(ctx, "command_channel_mismatch", "type", cmd.Type, "channel", ch)
		return
	}

	var passID string
	switch ch {
	case topics.ChannelManual:
		passID = messages.NewTicketID()
	case topics.ChannelTelepass:
		passID = cmd.TelepassID
		if passID == "" {
			o.drop(ctx, "missing_telepass_id", "type", cmd.Type)
			return
		}
	}

	o.requestPlate(ctx, ch, passID)

	o.publishState(ctx, topics.DirectionEntry, ch, messages.StateEvent{
		Type:      messages.TypeEntryPending,
		PassID:    passID,
		Timestamp: messages.Now(),
	})
}

func (o *Orchestrator) requestPlate(ctx context.Context, ch topics.Channel, passID string) {
	correlationID := messages.NewCorrelationID()
	o.cameraPending.Track(correlationID, passID)

	req := messages.CameraRequest{
		Type:          messages.TypeCameraRequest,
		CorrelationID: correlationID,
		Direction:     string(topics.DirectionEntry),
		Channel:       string(ch),
		PassID:        passID,
		Timestamp:     messages.Now(),
	}
	o.publish(ctx, topics.CameraRequests(o.tollID, topics.DirectionEntry), req)
}

// HandleCameraResponse completes the entry flow: it creates the session and
// publishes the ENTRY_ACCEPTED domain event.
func (o *Orchestrator) HandleCameraResponse(ctx context.Context, topic string, payload []byte) error {
	ctx = logging.WithTopic(ctx, topic)

	addr, err := topics.Parse(topic)
	if err != nil {
		o.drop(ctx, "invalid_topic", "error", err)
		return nil
	}
	if addr.Leaf != topics.LeafResponses || addr.Direction != topics.DirectionEntry || addr.TollboothID != o.tollID {
		return nil
	}

	resp, err := messages.DecodeCameraResponse(payload)
	if err != nil {
		o.drop(ctx, "malformed_camera_response", "error", err)
		return nil
	}
	if resp.Type != messages.TypeCameraResponse && resp.Type != messages.TypeCameraPlateResp {
		return nil
	}

	passID, ok := o.cameraPending.Resolve(resp.CorrelationID)
	if !ok {
		// Older camera simulators echo the pass id; accept it so an
		// orchestrator restart does not strand the vehicle.
		passID = resp.PassID
	}
	if passID == "" || resp.Plate == "" {
		o.drop(ctx, "incomplete_camera_response", "correlation_id", resp.CorrelationID)
		return nil
	}

	ch := addr.Channel
	if ch != topics.ChannelManual && ch != topics.ChannelTelepass {
		ch = messages.InferChannel(passID)
	}

	o.sessions.Put(Session{
		PassID:           passID,
		Channel:          ch,
		EntryTollboothID: o.tollID,
		Plate:            resp.Plate,
		EntryAt:          time.Now(),
		Phase:            PhaseOpen,
	})
	metrics.EntriesTotal.WithLabelValues(string(ch)).Inc()
	metrics.ActiveSessions.Set(float64(o.sessions.Len()))

	evt := messages.Event{
		Type:      messages.TypeEntryAccepted,
		Plate:     resp.Plate,
		Timestamp: messages.Now(),
	}
	switch ch {
	case topics.ChannelManual:
		evt.TicketID = passID
	case topics.ChannelTelepass:
		evt.TelepassID = passID
	}
	o.publish(ctx, topics.Events(o.tollID, topics.DirectionEntry, ch), evt)

	o.publishState(ctx, topics.DirectionEntry, ch, messages.StateEvent{
		Type:      messages.TypeEntryAcceptedUI,
		PassID:    passID,
		Plate:     resp.Plate,
		Timestamp: messages.Now(),
	})

	o.logger.InfowCtx(ctx, "Entry accepted",
		"pass_id", passID,
		"channel", ch,
		"plate", resp.Plate,
	)
	return nil
}

func (o *Orchestrator) handleExitCommand(ctx context.Context, ch topics.Channel, cmd messages.Command) {
	if cmd.IsExitCommand(ch) {
		o.beginExit(ctx, ch, cmd)
		return
	}

	if ch == topics.ChannelManual && cmd.Type == messages.TypeInsertPayment {
		o.completeManualPayment(ctx, cmd)
	}
}

func (o *Orchestrator) beginExit(ctx context.Context, ch topics.Channel, cmd messages.Command) {
	passID := cmd.ExitPassID(ch)
	if passID == "" {
		o.drop(ctx, "missing_pass_id", "type", cmd.Type)
		return
	}

	session, ok := o.sessions.Get(passID)
	if !ok {
		metrics.ExitsTotal.WithLabelValues(string(ch), "rejected").Inc()
		o.publishState(ctx, topics.DirectionExit, ch, messages.StateEvent{
			Type:      messages.TypeExitRejected,
			Reason:    messages.ReasonNoActiveSession,
			PassID:    passID,
			Timestamp: messages.Now(),
		})
		return
	}
	if session.Phase == PhaseAwaitingPayment {
		// Exit already priced; the vehicle owes an INSERT_PAYMENT, not
		// another price round trip.
		o.drop(ctx, "exit_already_priced", "pass_id", passID)
		return
	}

	o.requestTollPrice(ctx, session, ch)

	o.publishState(ctx, topics.DirectionExit, ch, messages.StateEvent{
		Type:      messages.TypeExitPendingPrice,
		PassID:    passID,
		Timestamp: messages.Now(),
	})
}

func (o *Orchestrator) requestTollPrice(ctx context.Context, session Session, ch topics.Channel) {
	correlationID := messages.NewCorrelationID()
	o.pricePending.Track(correlationID, session.PassID)

	req := messages.TollPriceRequest{
		Type:             messages.TypeTollPriceRequest,
		CorrelationID:    correlationID,
		ReplyTopic:       topics.Responses(o.tollID, topics.DirectionExit, ch),
		EntryTollboothID: session.EntryTollboothID,
		ExitTollboothID:  o.tollID,
		Timestamp:        messages.Now(),
	}
	switch ch {
	case topics.ChannelManual:
		req.TicketID = session.PassID
	case topics.ChannelTelepass:
		req.TelepassID = session.PassID
	}

	o.publish(ctx, topics.TollPriceRequests, req)
}

// HandleTollPriceResponse resumes an exit: telepass exits complete at once
// with payment deferred to a debt, manual exits wait for INSERT_PAYMENT.
func (o *Orchestrator) HandleTollPriceResponse(ctx context.Context, topic string, payload []byte) error {
	ctx = logging.WithTopic(ctx, topic)

	resp, err := messages.DecodeTollPriceResponse(payload)
	if err != nil {
		o.drop(ctx, "malformed_tollprice_response", "error", err)
		return nil
	}
	if resp.Type != messages.TypeTollPriceResponse {
		return nil
	}
	if resp.CorrelationID == "" || resp.AmountCents == nil {
		o.drop(ctx, "incomplete_tollprice_response", "correlation_id", resp.CorrelationID)
		return nil
	}

	passID, ok := o.pricePending.Resolve(resp.CorrelationID)
	if !ok {
		return nil
	}

	session, ok := o.sessions.Get(passID)
	if !ok {
		return nil
	}

	amount := *resp.AmountCents

	if session.Channel == topics.ChannelTelepass {
		o.publishExitCompleted(ctx, session, amount, false)
		o.sessions.Remove(passID)
		metrics.ExitsTotal.WithLabelValues(string(session.Channel), "completed").Inc()
		metrics.ActiveSessions.Set(float64(o.sessions.Len()))
		return nil
	}

	o.sessions.SetPhase(passID, PhaseAwaitingPayment)
	o.publishState(ctx, topics.DirectionExit, topics.ChannelManual, messages.StateEvent{
		Type:        messages.TypeRequestPayment,
		PassID:      passID,
		AmountCents: messages.IntPtr(amount),
		Timestamp:   messages.Now(),
	})
	return nil
}

func (o *Orchestrator) completeManualPayment(ctx context.Context, cmd messages.Command) {
	passID := cmd.PaymentPassID()
	if passID == "" || cmd.AmountCents == nil {
		o.drop(ctx, "incomplete_payment", "type", cmd.Type)
		return
	}

	session, ok := o.sessions.Get(passID)
	if !ok {
		o.drop(ctx, "payment_without_session", "pass_id", passID)
		return
	}

	o.publishExitCompleted(ctx, session, *cmd.AmountCents, true)
	o.sessions.Remove(passID)
	metrics.ExitsTotal.WithLabelValues(string(session.Channel), "completed").Inc()
	metrics.ActiveSessions.Set(float64(o.sessions.Len()))

	o.publishState(ctx, topics.DirectionExit, topics.ChannelManual, messages.StateEvent{
		Type:        messages.TypePaymentAccepted,
		PassID:      passID,
		AmountCents: cmd.AmountCents,
		Timestamp:   messages.Now(),
	})
}

func (o *Orchestrator) publishExitCompleted(ctx context.Context, session Session, amountCents int, paid bool) {
	evt := messages.Event{
		Type:             messages.TypeExitCompleted,
		EntryTollboothID: session.EntryTollboothID,
		AmountCents:      messages.IntPtr(amountCents),
		Paid:             messages.BoolPtr(paid),
		Timestamp:        messages.Now(),
	}
	switch session.Channel {
	case topics.ChannelManual:
		evt.TicketID = session.PassID
	case topics.ChannelTelepass:
		evt.TelepassID = session.PassID
	}

	o.publish(ctx, topics.Events(o.tollID, topics.DirectionExit, session.Channel), evt)

	o.logger.InfowCtx(ctx, "Exit completed",
		"pass_id", session.PassID,
		"channel", session.Channel,
		"amount_cents", amountCents,
		"paid", paid,
	)
}

// onCameraExpired fires when no plate ever came back for an entry. No session
// exists yet, so only observers need telling.
func (o *Orchestrator) onCameraExpired(correlationID, passID string) {
	ctx := context.Background()
	o.logger.Warnw("Camera response timed out",
		"correlation_id", correlationID,
		"pass_id", passID,
	)
	o.publishState(ctx, topics.DirectionEntry, messages.InferChannel(passID), messages.StateEvent{
		Type:      messages.TypeEntryRejected,
		Reason:    messages.ReasonCameraTimeout,
		PassID:    passID,
		Timestamp: messages.Now(),
	})
}

// onPriceExpired fires when a toll-price response never arrived. The session
// stays open because the vehicle is still inside and may retry the exit.
func (o *Orchestrator) onPriceExpired(correlationID, passID string) {
	ctx := context.Background()
	o.logger.Warnw("Toll price response timed out",
		"correlation_id", correlationID,
		"pass_id", passID,
	)

	ch := messages.InferChannel(passID)
	if session, ok := o.sessions.Get(passID); ok {
		ch = session.Channel
	}
	o.publishState(ctx, topics.DirectionExit, ch, messages.StateEvent{
		Type:      messages.TypeExitRejected,
		Reason:    messages.ReasonPriceResponseTimeout,
		PassID:    passID,
		Timestamp: messages.Now(),
	})
}

func (o *Orchestrator) publishState(ctx context.Context, dir topics.Direction, ch topics.Channel, state messages.StateEvent) {
	o.publish(ctx, topics.State(o.tollID, dir, ch), state)
}

func (o *Orchestrator) publish(ctx context.Context, topic string, v interface{}) {
	body, err := messages.Encode(v)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to encode message", "publish_topic", topic, "error", err)
		return
	}
	if err := o.bus.Publish(ctx, topic, body); err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to publish message", "publish_topic", topic, "error", err)
	}
}

func (o *Orchestrator) drop(ctx context.Context, reason string, keysAndValues ...interface{}) {
	metrics.MessagesDroppedTotal.WithLabelValues(serviceName, reason).Inc()
	args := append([]interface{}{"reason", reason}, keysAndValues...)
	o.logger.DebugwCtx(ctx, "Message dropped", args...)
}
