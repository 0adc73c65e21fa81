// Package pricing implements the global pricing and ledger service: it
// answers toll price requests for every tollbooth, persists trips from the
// domain event stream and tracks telepass debts.
package pricing

import (
	"context"
	"time"

	"tollgrid/internal/broker"
	"tollgrid/internal/logger"
	"tollgrid/internal/messages"
	"tollgrid/internal/topics"
	"tollgrid/pkg/errors"
	"tollgrid/pkg/logging"
	"tollgrid/pkg/metrics"
)

const serviceName = "pricing-service"

// Service is the ledger surface shared by the bus handlers and the admin
// HTTP API.
type Service interface {
	HandleEvent(ctx context.Context, topic string, payload []byte) error
	HandleTollPriceRequest(ctx context.Context, topic string, payload []byte) error

	CreateTollbooth(ctx context.Context, req CreateTollboothRequest) (Tollbooth, error)
	ListTollbooths(ctx context.Context) ([]Tollbooth, error)
	CreateFare(ctx context.Context, req CreateFareRequest) (Fare, error)
	ListFares(ctx context.Context) ([]Fare, error)
	Calculate(ctx context.Context, entryID, exitID string) (CalculateResponse, error)
	ListDebts(ctx context.Context, telepassID string) ([]TelepassDebt, error)
	PayDebt(ctx context.Context, debtID string) error
	Summary(ctx context.Context) (PaymentSummary, error)
}

type service struct {
	bus        broker.Client
	trips      TripRepository
	debts      DebtRepository
	fares      FareRepository
	tollbooths TollboothRepository
	currency   string
	logger     logger.Logger
}

func NewService(
	bus broker.Client,
	trips TripRepository,
	debts DebtRepository,
	fares FareRepository,
	tollbooths TollboothRepository,
	currency string,
	log logger.Logger,
) Service {
	return &service{
		bus:        bus,
		trips:      trips,
		debts:      debts,
		fares:      fares,
		tollbooths: tollbooths,
		currency:   currency,
		logger:     log,
	}
}

// Subscribe wires the service to the event stream of every tollbooth plus
// the global price request topic.
func Subscribe(bus broker.Client, svc Service) error {
	subs := []struct {
		filter  string
		handler broker.HandlerFunc
	}{
		{topics.FilterEntryEvents, svc.HandleEvent},
		{topics.FilterExitEvents, svc.HandleEvent},
		{topics.TollPriceRequests, svc.HandleTollPriceRequest},
	}
	for _, sub := range subs {
		if err := bus.Subscribe(sub.filter, sub.handler); err != nil {
			return err
		}
	}
	return nil
}

// HandleEvent folds one domain event into the ledger.
func (s *service) HandleEvent(ctx context.Context, topic string, payload []byte) error {
	ctx = logging.WithTopic(ctx, topic)

	addr, err := topics.Parse(topic)
	if err != nil {
		s.drop(ctx, "invalid_topic", "error", err)
		return nil
	}
	if addr.Leaf != topics.LeafEvents {
		return nil
	}

	evt, err := messages.DecodeEvent(payload)
	if err != nil {
		s.drop(ctx, "malformed_event", "error", err)
		return nil
	}

	switch evt.Type {
	case messages.TypeEntryAccepted:
		return s.recordEntry(ctx, addr, evt)
	case messages.TypeExitCompleted:
		return s.recordExit(ctx, addr, evt)
	default:
		return nil
	}
}

func (s *service) recordEntry(ctx context.Context, addr topics.Address, evt messages.Event) error {
	passID := evt.PassIDForChannel(addr.Channel)
	if passID == "" || evt.Plate == "" {
		s.logger.WarnwCtx(ctx, "Entry event missing pass id or plate, skipping",
			"tollbooth_id", addr.TollboothID,
			"channel", addr.Channel,
		)
		s.drop(ctx, "incomplete_entry_event")
		return nil
	}

	trip := Trip{
		EntryTollboothID: addr.TollboothID,
		Plate:            evt.Plate,
		EntryAt:          messages.ParseTimestamp(evt.Timestamp),
		Currency:         s.currency,
	}
	switch addr.Channel {
	case topics.ChannelManual:
		trip.TicketID = &passID
	case topics.ChannelTelepass:
		trip.TelepassID = &passID
	}

	created, err := s.trips.CreateOpen(ctx, trip)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to record trip entry", "error", err)
		return err
	}

	metrics.TripsTotal.WithLabelValues("opened", string(addr.Channel)).Inc()
	s.logger.InfowCtx(ctx, "Trip opened",
		"trip_id", created.ID,
		"plate", created.Plate,
		"entry_tollbooth_id", created.EntryTollboothID,
	)
	return nil
}

func (s *service) recordExit(ctx context.Context, addr topics.Address, evt messages.Event) error {
	passID := evt.PassIDForChannel(addr.Channel)
	if passID == "" || evt.EntryTollboothID == "" || evt.AmountCents == nil {
		s.logger.WarnwCtx(ctx, "Exit event incomplete, skipping",
			"tollbooth_id", addr.TollboothID,
			"channel", addr.Channel,
		)
		s.drop(ctx, "incomplete_exit_event")
		return nil
	}

	var trip Trip
	var err error
	switch addr.Channel {
	case topics.ChannelManual:
		trip, err = s.trips.FindActiveByTicketID(ctx, passID)
	case topics.ChannelTelepass:
		trip, err = s.trips.FindActiveByTelepassID(ctx, passID)
	default:
		s.drop(ctx, "invalid_channel", "channel", addr.Channel)
		return nil
	}
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.WarnwCtx(ctx, "Exit event without an open trip, skipping", "pass_id", passID)
			s.drop(ctx, "no_open_trip")
			return nil
		}
		s.logger.ErrorwCtx(ctx, "Failed to find open trip", "error", err)
		return err
	}

	paid := addr.Channel == topics.ChannelManual
	if evt.Paid != nil {
		paid = *evt.Paid
	}

	if err := s.trips.Close(ctx, trip.ID, addr.TollboothID, *evt.AmountCents, paid); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to close trip", "trip_id", trip.ID, "error", err)
		return err
	}
	metrics.TripsTotal.WithLabelValues("closed", string(addr.Channel)).Inc()

	if addr.Channel == topics.ChannelTelepass {
		debt, err := s.debts.Create(ctx, TelepassDebt{
			TelepassID:  passID,
			TripID:      trip.ID,
			AmountCents: *evt.AmountCents,
			Currency:    s.currency,
		})
		if err != nil {
			s.logger.ErrorwCtx(ctx, "Failed to create debt", "trip_id", trip.ID, "error", err)
			return err
		}
		metrics.DebtsTotal.WithLabelValues("created").Inc()
		s.logger.InfowCtx(ctx, "Debt created",
			"debt_id", debt.ID,
			"telepass_id", passID,
			"amount_cents", debt.AmountCents,
		)
	}

	s.logger.InfowCtx(ctx, "Trip closed",
		"trip_id", trip.ID,
		"exit_tollbooth_id", addr.TollboothID,
		"amount_cents", *evt.AmountCents,
		"paid", paid,
	)
	return nil
}

// HandleTollPriceRequest answers one price request on its reply topic. An
// unpriced route costs zero rather than stalling the exit saga.
func (s *service) HandleTollPriceRequest(ctx context.Context, topic string, payload []byte) error {
	ctx = logging.WithTopic(ctx, topic)

	req, err := messages.DecodeTollPriceRequest(payload)
	if err != nil {
		s.drop(ctx, "malformed_tollprice_request", "error", err)
		return nil
	}
	if req.Type != messages.TypeTollPriceRequest {
		return nil
	}
	if req.CorrelationID == "" || req.ReplyTopic == "" {
		s.drop(ctx, "incomplete_tollprice_request", "correlation_id", req.CorrelationID)
		return nil
	}

	start := time.Now()
	amount, found, err := s.fares.Lookup(ctx, req.EntryTollboothID, req.ExitTollboothID)
	if err != nil {
		metrics.ObserveFareLookupDuration(time.Since(start), "error")
		s.logger.ErrorwCtx(ctx, "Fare lookup failed",
			"entry_tollbooth_id", req.EntryTollboothID,
			"exit_tollbooth_id", req.ExitTollboothID,
			"error", err,
		)
		return err
	}
	status := "hit"
	if !found {
		status = "miss"
		s.logger.WarnwCtx(ctx, "No fare configured, pricing at zero",
			"entry_tollbooth_id", req.EntryTollboothID,
			"exit_tollbooth_id", req.ExitTollboothID,
		)
	}
	metrics.ObserveFareLookupDuration(time.Since(start), status)

	resp := messages.TollPriceResponse{
		Type:          messages.TypeTollPriceResponse,
		CorrelationID: req.CorrelationID,
		AmountCents:   messages.IntPtr(amount),
		Currency:      s.currency,
		Timestamp:     messages.Now(),
	}
	body, err := messages.Encode(resp)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to encode toll price response", "error", err)
		return nil
	}
	if err := s.bus.Publish(ctx, req.ReplyTopic, body); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish toll price response",
			"publish_topic", req.ReplyTopic,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
	}
	return nil
}

func (s *service) CreateTollbooth(ctx context.Context, req CreateTollboothRequest) (Tollbooth, error) {
	return s.tollbooths.Create(ctx, Tollbooth{ID: req.ID, Name: req.Name})
}

func (s *service) ListTollbooths(ctx context.Context) ([]Tollbooth, error) {
	return s.tollbooths.List(ctx)
}

func (s *service) CreateFare(ctx context.Context, req CreateFareRequest) (Fare, error) {
	if req.EntryTollboothID == req.ExitTollboothID {
		return Fare{}, errors.ErrValidation.WithDetail("reason", "entry and exit tollbooth must differ")
	}
	return s.fares.Create(ctx, Fare{
		EntryTollboothID: req.EntryTollboothID,
		ExitTollboothID:  req.ExitTollboothID,
		AmountCents:      req.AmountCents,
	})
}

func (s *service) ListFares(ctx context.Context) ([]Fare, error) {
	return s.fares.List(ctx)
}

func (s *service) Calculate(ctx context.Context, entryID, exitID string) (CalculateResponse, error) {
	amount, found, err := s.fares.Lookup(ctx, entryID, exitID)
	if err != nil {
		return CalculateResponse{}, err
	}
	if !found {
		return CalculateResponse{}, errors.ErrNotFound.
			WithDetail("entry_tollbooth_id", entryID).
			WithDetail("exit_tollbooth_id", exitID).
			WithDetail("message", "fare not found")
	}
	return CalculateResponse{AmountCents: amount, Currency: s.currency}, nil
}

func (s *service) ListDebts(ctx context.Context, telepassID string) ([]TelepassDebt, error) {
	return s.debts.ListByTelepassID(ctx, telepassID)
}

// PayDebt settles an open debt and marks the backing trip as paid.
func (s *service) PayDebt(ctx context.Context, debtID string) error {
	tripID, err := s.debts.MarkPaid(ctx, debtID)
	if err != nil {
		return err
	}
	metrics.DebtsTotal.WithLabelValues("paid").Inc()

	if err := s.trips.MarkPaid(ctx, tripID); err != nil {
		s.logger.ErrorwCtx(ctx, "Debt settled, but trip update failed",
			"debt_id", debtID,
			"trip_id", tripID,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *service) Summary(ctx context.Context) (PaymentSummary, error) {
	open, err := s.debts.OpenDebtCents(ctx)
	if err != nil {
		return PaymentSummary{}, err
	}
	collected, err := s.trips.CollectedCents(ctx)
	if err != nil {
		return PaymentSummary{}, err
	}
	return PaymentSummary{
		OpenDebtCents:  open,
		CollectedCents: collected,
		Currency:       s.currency,
	}, nil
}

func (s *service) drop(ctx context.Context, reason string, keysAndValues ...interface{}) {
	metrics.MessagesDroppedTotal.WithLabelValues(serviceName, reason).Inc()
	args := append([]interface{}{"reason", reason}, keysAndValues...)
	s.logger.DebugwCtx(ctx, "Message dropped", args...)
}
