package pricing

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tollgrid/pkg/errors"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

type TripRepository interface {
	CreateOpen(ctx context.Context, trip Trip) (Trip, error)
	FindActiveByTicketID(ctx context.Context, ticketID string) (Trip, error)
	FindActiveByTelepassID(ctx context.Context, telepassID string) (Trip, error)
	Close(ctx context.Context, tripID, exitTollboothID string, amountCents int, paid bool) error
	MarkPaid(ctx context.Context, tripID string) error
	CollectedCents(ctx context.Context) (int, error)
}

type DebtRepository interface {
	Create(ctx context.Context, debt TelepassDebt) (TelepassDebt, error)
	ListByTelepassID(ctx context.Context, telepassID string) ([]TelepassDebt, error)
	MarkPaid(ctx context.Context, debtID string) (string, error)
	OpenDebtCents(ctx context.Context) (int, error)
}

type FareRepository interface {
	Create(ctx context.Context, fare Fare) (Fare, error)
	List(ctx context.Context) ([]Fare, error)
	Lookup(ctx context.Context, entryTollboothID, exitTollboothID string) (int, bool, error)
}

type TollboothRepository interface {
	Create(ctx context.Context, booth Tollbooth) (Tollbooth, error)
	List(ctx context.Context) ([]Tollbooth, error)
}

type PostgresTripRepository struct {
	db *sql.DB
}

func NewTripRepository(db *sql.DB) TripRepository {
	return &PostgresTripRepository{db: db}
}

func (r *PostgresTripRepository) CreateOpen(ctx context.Context, trip Trip) (Trip, error) {
	trip.ID = uuid.New().String()

	query := `
		INSERT INTO trips (id, entry_tollbooth_id, ticket_id, telepass_id, plate, entry_at, currency, paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`
	_, err := r.db.ExecContext(ctx, query,
		trip.ID,
		trip.EntryTollboothID,
		trip.TicketID,
		trip.TelepassID,
		trip.Plate,
		trip.EntryAt,
		trip.Currency,
	)
	if err != nil {
		return Trip{}, fmt.Errorf("failed to insert trip: %w", err)
	}
	return trip, nil
}

const activeTripQuery = `
	SELECT id, entry_tollbooth_id, exit_tollbooth_id, ticket_id, telepass_id,
	       plate, entry_at, exit_at, amount_cents, currency, paid
	FROM trips
	WHERE %s = $1 AND exit_at IS NULL
	ORDER BY entry_at DESC
	LIMIT 1
`

func (r *PostgresTripRepository) FindActiveByTicketID(ctx context.Context, ticketID string) (Trip, error) {
	return r.findActive(ctx, fmt.Sprintf(activeTripQuery, "ticket_id"), ticketID)
}

func (r *PostgresTripRepository) FindActiveByTelepassID(ctx context.Context, telepassID string) (Trip, error) {
	return r.findActive(ctx, fmt.Sprintf(activeTripQuery, "telepass_id"), telepassID)
}

func (r *PostgresTripRepository) findActive(ctx context.Context, query, passID string) (Trip, error) {
	var trip Trip
	err := r.db.QueryRowContext(ctx, query, passID).Scan(
		&trip.ID,
		&trip.EntryTollboothID,
		&trip.ExitTollboothID,
		&trip.TicketID,
		&trip.TelepassID,
		&trip.Plate,
		&trip.EntryAt,
		&trip.ExitAt,
		&trip.AmountCents,
		&trip.Currency,
		&trip.Paid,
	)
	if err == sql.ErrNoRows {
		return Trip{}, errors.ErrNotFound.WithDetail("resource", "active trip")
	}
	if err != nil {
		return Trip{}, fmt.Errorf("failed to query active trip: %w", err)
	}
	return trip, nil
}

func (r *PostgresTripRepository) Close(ctx context.Context, tripID, exitTollboothID string, amountCents int, paid bool) error {
	query := `
		UPDATE trips
		SET exit_tollbooth_id = $2, exit_at = NOW(), amount_cents = $3, paid = $4
		WHERE id = $1 AND exit_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, tripID, exitTollboothID, amountCents, paid)
	if err != nil {
		return fmt.Errorf("failed to close trip: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errors.ErrNotFound.WithDetail("resource", "open trip").WithDetail("trip_id", tripID)
	}
	return nil
}

func (r *PostgresTripRepository) MarkPaid(ctx context.Context, tripID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE trips SET paid = true WHERE id = $1`, tripID)
	if err != nil {
		return fmt.Errorf("failed to mark trip paid: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errors.ErrNotFound.WithDetail("resource", "trip").WithDetail("trip_id", tripID)
	}
	return nil
}

func (r *PostgresTripRepository) CollectedCents(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM trips WHERE paid = true`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum collected amounts: %w", err)
	}
	return total, nil
}

type PostgresDebtRepository struct {
	db *sql.DB
}

func NewDebtRepository(db *sql.DB) DebtRepository {
	return &PostgresDebtRepository{db: db}
}

func (r *PostgresDebtRepository) Create(ctx context.Context, debt TelepassDebt) (TelepassDebt, error) {
	debt.ID = uuid.New().String()
	debt.Status = DebtStatusOpen

	query := `
		INSERT INTO telepass_debts (id, telepass_id, trip_id, amount_cents, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		debt.ID,
		debt.TelepassID,
		debt.TripID,
		debt.AmountCents,
		debt.Currency,
		debt.Status,
	).Scan(&debt.CreatedAt)
	if err != nil {
		return TelepassDebt{}, fmt.Errorf("failed to insert debt: %w", err)
	}
	return debt, nil
}

func (r *PostgresDebtRepository) ListByTelepassID(ctx context.Context, telepassID string) ([]TelepassDebt, error) {
	query := `
		SELECT id, telepass_id, trip_id, amount_cents, currency, status, created_at
		FROM telepass_debts
		WHERE telepass_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, telepassID)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []TelepassDebt
	for rows.Next() {
		var debt TelepassDebt
		if err := rows.Scan(
			&debt.ID,
			&debt.TelepassID,
			&debt.TripID,
			&debt.AmountCents,
			&debt.Currency,
			&debt.Status,
			&debt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, debt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return debts, nil
}

// MarkPaid settles one open debt and returns the trip id it belongs to so
// the caller can mark the trip paid as well. Settling a missing or already
// paid debt is a not-found, never a double payment.
func (r *PostgresDebtRepository) MarkPaid(ctx context.Context, debtID string) (string, error) {
	query := `
		UPDATE telepass_debts
		SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING trip_id
	`
	var tripID string
	err := r.db.QueryRowContext(ctx, query, debtID, DebtStatusPaid, DebtStatusOpen).Scan(&tripID)
	if err == sql.ErrNoRows {
		return "", errors.ErrNotFound.WithDetail("resource", "open debt").WithDetail("debt_id", debtID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to mark debt paid: %w", err)
	}
	return tripID, nil
}

func (r *PostgresDebtRepository) OpenDebtCents(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM telepass_debts WHERE status = $1`,
		DebtStatusOpen,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum open debts: %w", err)
	}
	return total, nil
}

type PostgresFareRepository struct {
	db *sql.DB
}

func NewFareRepository(db *sql.DB) FareRepository {
	return &PostgresFareRepository{db: db}
}

func (r *PostgresFareRepository) Create(ctx context.Context, fare Fare) (Fare, error) {
	fare.ID = uuid.New().String()

	query := `
		INSERT INTO fares (id, entry_tollbooth_id, exit_tollbooth_id, amount_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (entry_tollbooth_id, exit_tollbooth_id)
		DO UPDATE SET amount_cents = EXCLUDED.amount_cents, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		fare.ID,
		fare.EntryTollboothID,
		fare.ExitTollboothID,
		fare.AmountCents,
	).Scan(&fare.ID, &fare.CreatedAt, &fare.UpdatedAt)
	if err != nil {
		return Fare{}, fmt.Errorf("failed to upsert fare: %w", err)
	}
	return fare, nil
}

func (r *PostgresFareRepository) List(ctx context.Context) ([]Fare, error) {
	query := `
		SELECT id, entry_tollbooth_id, exit_tollbooth_id, amount_cents, created_at, updated_at
		FROM fares
		ORDER BY entry_tollbooth_id, exit_tollbooth_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fares: %w", err)
	}
	defer rows.Close()

	var fares []Fare
	for rows.Next() {
		var fare Fare
		if err := rows.Scan(
			&fare.ID,
			&fare.EntryTollboothID,
			&fare.ExitTollboothID,
			&fare.AmountCents,
			&fare.CreatedAt,
			&fare.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fare: %w", err)
		}
		fares = append(fares, fare)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return fares, nil
}

// Lookup returns the fare for a directed pair. A missing pair is not an
// error; the caller decides what an unpriced route costs.
func (r *PostgresFareRepository) Lookup(ctx context.Context, entryTollboothID, exitTollboothID string) (int, bool, error) {
	var amount int
	err := r.db.QueryRowContext(ctx,
		`SELECT amount_cents FROM fares WHERE entry_tollbooth_id = $1 AND exit_tollbooth_id = $2`,
		entryTollboothID, exitTollboothID,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query fare: %w", err)
	}
	return amount, true, nil
}

type PostgresTollboothRepository struct {
	db *sql.DB
}

func NewTollboothRepository(db *sql.DB) TollboothRepository {
	return &PostgresTollboothRepository{db: db}
}

func (r *PostgresTollboothRepository) Create(ctx context.Context, booth Tollbooth) (Tollbooth, error) {
	query := `
		INSERT INTO tollbooths (id, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, booth.ID, booth.Name).Scan(&booth.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Tollbooth{}, errors.ErrConflict.WithDetail("tollbooth_id", booth.ID)
		}
		return Tollbooth{}, fmt.Errorf("failed to insert tollbooth: %w", err)
	}
	return booth, nil
}

func (r *PostgresTollboothRepository) List(ctx context.Context) ([]Tollbooth, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM tollbooths ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tollbooths: %w", err)
	}
	defer rows.Close()

	var booths []Tollbooth
	for rows.Next() {
		var booth Tollbooth
		if err := rows.Scan(&booth.ID, &booth.Name, &booth.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tollbooth: %w", err)
		}
		booths = append(booths, booth)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return booths, nil
}
