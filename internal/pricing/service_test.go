package pricing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollgrid/internal/broker"
	"tollgrid/internal/logger"
	"tollgrid/internal/messages"
	"tollgrid/internal/topics"
	"tollgrid/pkg/errors"
)

type fakeTripRepo struct {
	trips  map[string]*Trip
	nextID int
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{trips: make(map[string]*Trip)}
}

func (r *fakeTripRepo) CreateOpen(ctx context.Context, trip Trip) (Trip, error) {
	r.nextID++
	trip.ID = string(rune('a' + r.nextID - 1))
	copied := trip
	r.trips[trip.ID] = &copied
	return trip, nil
}

func (r *fakeTripRepo) FindActiveByTicketID(ctx context.Context, ticketID string) (Trip, error) {
	return r.findActive(func(t *Trip) bool { return t.TicketID != nil && *t.TicketID == ticketID })
}

func (r *fakeTripRepo) FindActiveByTelepassID(ctx context.Context, telepassID string) (Trip, error) {
	return r.findActive(func(t *Trip) bool { return t.TelepassID != nil && *t.TelepassID == telepassID })
}

func (r *fakeTripRepo) findActive(match func(*Trip) bool) (Trip, error) {
	for _, trip := range r.trips {
		if trip.ExitAt == nil && match(trip) {
			return *trip, nil
		}
	}
	return Trip{}, errors.ErrNotFound
}

func (r *fakeTripRepo) Close(ctx context.Context, tripID, exitTollboothID string, amountCents int, paid bool) error {
	trip, ok := r.trips[tripID]
	if !ok || trip.ExitAt != nil {
		return errors.ErrNotFound
	}
	now := time.Now()
	trip.ExitAt = &now
	trip.ExitTollboothID = &exitTollboothID
	trip.AmountCents = &amountCents
	trip.Paid = paid
	return nil
}

func (r *fakeTripRepo) MarkPaid(ctx context.Context, tripID string) error {
	trip, ok := r.trips[tripID]
	if !ok {
		return errors.ErrNotFound
	}
	trip.Paid = true
	return nil
}

func (r *fakeTripRepo) CollectedCents(ctx context.Context) (int, error) {
	total := 0
	for _, trip := range r.trips {
		if trip.Paid && trip.AmountCents != nil {
			total += *trip.AmountCents
		}
	}
	return total, nil
}

type fakeDebtRepo struct {
	debts  map[string]*TelepassDebt
	nextID int
}

func newFakeDebtRepo() *fakeDebtRepo {
	return &fakeDebtRepo{debts: make(map[string]*TelepassDebt)}
}

func (r *fakeDebtRepo) Create(ctx context.Context, debt TelepassDebt) (TelepassDebt, error) {
	r.nextID++
	debt.ID = string(rune('A' + r.nextID - 1))
	debt.Status = DebtStatusOpen
	debt.CreatedAt = time.Now()
	copied := debt
	r.debts[debt.ID] = &copied
	return debt, nil
}

func (r *fakeDebtRepo) ListByTelepassID(ctx context.Context, telepassID string) ([]TelepassDebt, error) {
	var out []TelepassDebt
	for _, debt := range r.debts {
		if debt.TelepassID == telepassID {
			out = append(out, *debt)
		}
	}
	return out, nil
}

func (r *fakeDebtRepo) MarkPaid(ctx context.Context, debtID string) (string, error) {
	debt, ok := r.debts[debtID]
	if !ok || debt.Status != DebtStatusOpen {
		return "", errors.ErrNotFound
	}
	debt.Status = DebtStatusPaid
	return debt.TripID, nil
}

func (r *fakeDebtRepo) OpenDebtCents(ctx context.Context) (int, error) {
	total := 0
	for _, debt := range r.debts {
		if debt.Status == DebtStatusOpen {
			total += debt.AmountCents
		}
	}
	return total, nil
}

type fakeFareRepo struct {
	fares map[[2]string]int
}

func newFakeFareRepo() *fakeFareRepo {
	return &fakeFareRepo{fares: make(map[[2]string]int)}
}

func (r *fakeFareRepo) Create(ctx context.Context, fare Fare) (Fare, error) {
	r.fares[[2]string{fare.EntryTollboothID, fare.ExitTollboothID}] = fare.AmountCents
	fare.ID = "fare"
	return fare, nil
}

func (r *fakeFareRepo) List(ctx context.Context) ([]Fare, error) {
	var out []Fare
	for key, amount := range r.fares {
		out = append(out, Fare{EntryTollboothID: key[0], ExitTollboothID: key[1], AmountCents: amount})
	}
	return out, nil
}

func (r *fakeFareRepo) Lookup(ctx context.Context, entry, exit string) (int, bool, error) {
	amount, ok := r.fares[[2]string{entry, exit}]
	return amount, ok, nil
}

type fakeTollboothRepo struct {
	booths []Tollbooth
}

func (r *fakeTollboothRepo) Create(ctx context.Context, booth Tollbooth) (Tollbooth, error) {
	for _, b := range r.booths {
		if b.ID == booth.ID {
			return Tollbooth{}, errors.ErrConflict
		}
	}
	booth.CreatedAt = time.Now()
	r.booths = append(r.booths, booth)
	return booth, nil
}

func (r *fakeTollboothRepo) List(ctx context.Context) ([]Tollbooth, error) {
	return r.booths, nil
}

type fixture struct {
	svc   Service
	bus   *broker.MemoryBus
	trips *fakeTripRepo
	debts *fakeDebtRepo
	fares *fakeFareRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		bus:   broker.NewMemoryBus(logger.NopLogger()),
		trips: newFakeTripRepo(),
		debts: newFakeDebtRepo(),
		fares: newFakeFareRepo(),
	}
	f.svc = NewService(f.bus, f.trips, f.debts, f.fares, &fakeTollboothRepo{}, "EUR", logger.NopLogger())
	require.NoError(t, Subscribe(f.bus, f.svc))
	return f
}

func (f *fixture) publish(t *testing.T, topic string, v interface{}) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(context.Background(), topic, body))
}

func TestEntryEventOpensTrip(t *testing.T) {
	f := newFixture(t)

	f.publish(t, topics.Events("TB-NORTH-1", topics.DirectionEntry, topics.ChannelTelepass), messages.Event{
		Type:       messages.TypeEntryAccepted,
		TelepassID: "OBU-001",
		Plate:      "AB123CD",
		Timestamp:  messages.Now(),
	})

	trip, err := f.trips.FindActiveByTelepassID(context.Background(), "OBU-001")
	require.NoError(t, err)
	assert.Equal(t, "TB-NORTH-1", trip.EntryTollboothID)
	assert.Equal(t, "AB123CD", trip.Plate)
	assert.Equal(t, "EUR", trip.Currency)
	assert.Nil(t, trip.TicketID)
}

func TestEntryEventWithoutPlateIsSkipped(t *testing.T) {
	f := newFixture(t)

	f.publish(t, topics.Events("TB-NORTH-1", topics.DirectionEntry, topics.ChannelManual), messages.Event{
		Type:     messages.TypeEntryAccepted,
		TicketID: "TCK-AB12CD34",
	})

	assert.Empty(t, f.trips.trips)
}

func TestTelepassExitClosesTripAndCreatesDebt(t *testing.T) {
	f := newFixture(t)

	f.publish(t, topics.Events("TB-NORTH-1", topics.DirectionEntry, topics.ChannelTelepass), messages.Event{
		Type:       messages.TypeEntryAccepted,
		TelepassID: "OBU-001",
		Plate:      "AB123CD",
	})

	f.publish(t, topics.Events("TB-SOUTH-9", topics.DirectionExit, topics.ChannelTelepass), messages.Event{
		Type:             messages.TypeExitCompleted,
		TelepassID:       "OBU-001",
		EntryTollboothID: "TB-NORTH-1",
		AmountCents:      messages.IntPtr(850),
		Paid:             messages.BoolPtr(false),
	})

	require.Len(t, f.trips.trips, 1)
	var trip *Trip
	for _, tr := range f.trips.trips {
		trip = tr
	}
	require.NotNil(t, trip.ExitAt)
	assert.Equal(t, "TB-SOUTH-9", *trip.ExitTollboothID)
	assert.Equal(t, 850, *trip.AmountCents)
	assert.False(t, trip.Paid)

	debts, err := f.debts.ListByTelepassID(context.Background(), "OBU-001")
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, DebtStatusOpen, debts[0].Status)
	assert.Equal(t, 850, debts[0].AmountCents)
	assert.Equal(t, trip.ID, debts[0].TripID)
}

func TestManualExitClosesTripPaid(t *testing.T) {
	f := newFixture(t)

	f.publish(t, topics.Events("TB-NORTH-1", topics.DirectionEntry, topics.ChannelManual), messages.Event{
		Type:     messages.TypeEntryAccepted,
		TicketID: "TCK-AB12CD34",
		Plate:    "CD456EF",
	})

	f.publish(t, topics.Events("TB-SOUTH-9", topics.DirectionExit, topics.ChannelManual), messages.Event{
		Type:             messages.TypeExitCompleted,
		TicketID:         "TCK-AB12CD34",
		EntryTollboothID: "TB-NORTH-1",
		AmountCents:      messages.IntPtr(1200),
		Paid:             messages.BoolPtr(true),
	})

	require.Len(t, f.trips.trips, 1)
	for _, trip := range f.trips.trips {
		assert.True(t, trip.Paid)
		assert.Equal(t, 1200, *trip.AmountCents)
	}
	assert.Empty(t, f.debts.debts, "manual exits create no debt")
}

func TestExitEventWithoutOpenTripIsSkipped(t *testing.T) {
	f := newFixture(t)

	f.publish(t, topics.Events("TB-SOUTH-9", topics.DirectionExit, topics.ChannelTelepass), messages.Event{
		Type:             messages.TypeExitCompleted,
		TelepassID:       "OBU-404",
		EntryTollboothID: "TB-NORTH-1",
		AmountCents:      messages.IntPtr(850),
	})

	assert.Empty(t, f.trips.trips)
	assert.Empty(t, f.debts.debts)
}

func TestTollPriceRequestAnsweredOnReplyTopic(t *testing.T) {
	f := newFixture(t)
	_, err := f.fares.Create(context.Background(), Fare{
		EntryTollboothID: "TB-NORTH-1",
		ExitTollboothID:  "TB-SOUTH-9",
		AmountCents:      850,
	})
	require.NoError(t, err)

	var replies []messages.TollPriceResponse
	require.NoError(t, f.bus.Subscribe("highway/TB-SOUTH-9/exit/telepass/responses", func(ctx context.Context, topic string, payload []byte) error {
		var resp messages.TollPriceResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return err
		}
		replies = append(replies, resp)
		return nil
	}))

	f.publish(t, topics.TollPriceRequests, messages.TollPriceRequest{
		Type:             messages.TypeTollPriceRequest,
		CorrelationID:    "corr-1",
		ReplyTopic:       "highway/TB-SOUTH-9/exit/telepass/responses",
		EntryTollboothID: "TB-NORTH-1",
		ExitTollboothID:  "TB-SOUTH-9",
		TelepassID:       "OBU-001",
	})

	require.Len(t, replies, 1)
	resp := replies[0]
	assert.Equal(t, messages.TypeTollPriceResponse, resp.Type)
	assert.Equal(t, "corr-1", resp.CorrelationID)
	require.NotNil(t, resp.AmountCents)
	assert.Equal(t, 850, *resp.AmountCents)
	assert.Equal(t, "EUR", resp.Currency)
}

func TestUnknownFarePricesAtZero(t *testing.T) {
	f := newFixture(t)

	var replies []messages.TollPriceResponse
	require.NoError(t, f.bus.Subscribe("highway/TB-X/exit/manual/responses", func(ctx context.Context, topic string, payload []byte) error {
		var resp messages.TollPriceResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return err
		}
		replies = append(replies, resp)
		return nil
	}))

	f.publish(t, topics.TollPriceRequests, messages.TollPriceRequest{
		Type:             messages.TypeTollPriceRequest,
		CorrelationID:    "corr-1",
		ReplyTopic:       "highway/TB-X/exit/manual/responses",
		EntryTollboothID: "TB-UNKNOWN",
		ExitTollboothID:  "TB-X",
	})

	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].AmountCents)
	assert.Equal(t, 0, *replies[0].AmountCents)
}

func TestTollPriceRequestWithoutReplyTopicIsDropped(t *testing.T) {
	f := newFixture(t)

	f.publish(t, topics.TollPriceRequests, messages.TollPriceRequest{
		Type:          messages.TypeTollPriceRequest,
		CorrelationID: "corr-1",
	})
	// No panic, no reply; nothing further to observe.
}

func TestPayDebtSettlesDebtAndTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trip, err := f.trips.CreateOpen(ctx, Trip{TelepassID: strPtr("OBU-001"), Plate: "AB123CD", Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, f.trips.Close(ctx, trip.ID, "TB-SOUTH-9", 850, false))

	debt, err := f.debts.Create(ctx, TelepassDebt{TelepassID: "OBU-001", TripID: trip.ID, AmountCents: 850, Currency: "EUR"})
	require.NoError(t, err)

	require.NoError(t, f.svc.PayDebt(ctx, debt.ID))

	debts, err := f.svc.ListDebts(ctx, "OBU-001")
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, DebtStatusPaid, debts[0].Status)
	assert.True(t, f.trips.trips[trip.ID].Paid)

	// Second settlement attempt finds no open debt.
	err = f.svc.PayDebt(ctx, debt.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paidTrip, err := f.trips.CreateOpen(ctx, Trip{TicketID: strPtr("TCK-AB12CD34"), Plate: "CD456EF", Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, f.trips.Close(ctx, paidTrip.ID, "TB-SOUTH-9", 1200, true))

	openTrip, err := f.trips.CreateOpen(ctx, Trip{TelepassID: strPtr("OBU-001"), Plate: "AB123CD", Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, f.trips.Close(ctx, openTrip.ID, "TB-SOUTH-9", 850, false))
	_, err = f.debts.Create(ctx, TelepassDebt{TelepassID: "OBU-001", TripID: openTrip.ID, AmountCents: 850, Currency: "EUR"})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 850, summary.OpenDebtCents)
	assert.Equal(t, 1200, summary.CollectedCents)
	assert.Equal(t, "EUR", summary.Currency)
}

func TestCalculateKnownAndUnknownFare(t *testing.T) {
	f := newFixture(t)
	_, err := f.fares.Create(context.Background(), Fare{
		EntryTollboothID: "TB-NORTH-1",
		ExitTollboothID:  "TB-SOUTH-9",
		AmountCents:      850,
	})
	require.NoError(t, err)

	result, err := f.svc.Calculate(context.Background(), "TB-NORTH-1", "TB-SOUTH-9")
	require.NoError(t, err)
	assert.Equal(t, 850, result.AmountCents)
	assert.Equal(t, "EUR", result.Currency)

	_, err = f.svc.Calculate(context.Background(), "TB-X", "TB-Y")
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateFareRejectsSamePair(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFare(context.Background(), CreateFareRequest{
		EntryTollboothID: "TB-NORTH-1",
		ExitTollboothID:  "TB-NORTH-1",
		AmountCents:      500,
	})
	assert.True(t, errors.IsValidation(err))
}

func strPtr(s string) *string { return &s }
