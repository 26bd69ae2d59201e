// README: Order store backed by PostgreSQL with optimistic status locking.
package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mealdrop/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, status, status_version, restaurant_id, courier_id,
	customer_name, customer_email, customer_phone,
	street, city, state, zip_code,
	cost_cents, payment_intent_id, payment_method_ref,
	estimated_delivery_at, accepted_at, delivered_at, trace, created_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, status, status_version, restaurant_id, courier_id,
			customer_name, customer_email, customer_phone,
			street, city, state, zip_code,
			cost_cents, payment_intent_id, payment_method_ref,
			estimated_delivery_at, accepted_at, delivered_at, trace, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20
		)`,
		string(o.ID), string(o.Status), o.StatusVersion, string(o.RestaurantID), idPtr(o.CourierID),
		o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.Street, o.City, o.State, o.ZipCode,
		o.Cost.Amount, o.PaymentIntentID, o.PaymentMethodRef,
		o.EstimatedDeliveryAt, o.AcceptedAt, o.DeliveredAt, o.Trace, o.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	return scanOrder(row)
}

// UpdateStatus transitions the order only when its current status and version
// still match the caller's expectation; the returned bool reports whether the
// row was won. Timestamps tied to a status are set in the same statement, and
// the courier reference is nulled when the target status does not carry one.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, courierID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    courier_id = CASE WHEN $6 THEN COALESCE($2, courier_id) ELSE NULL END,
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), idPtr(courierID), string(id), string(from), version, CourierRequired(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetPaymentIntent(ctx context.Context, id types.ID, intentID, methodRef string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE orders SET payment_intent_id = $1, payment_method_ref = $2 WHERE id = $3`,
		intentID, methodRef, string(id),
	)
	return err
}

func (s *Store) RecordDelivery(ctx context.Context, id types.ID, trace string, deliveredAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE orders SET trace = $1, delivered_at = $2 WHERE id = $3`,
		trace, deliveredAt, string(id),
	)
	return err
}

func (s *Store) ListByCourierAndStatus(ctx context.Context, courierID types.ID, statuses ...Status) ([]Order, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE courier_id = $1 AND status = ANY($2)
		ORDER BY created_at ASC`,
		string(courierID), names,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// AcceptedLoadByRestaurant groups the restaurant's ACCEPTED orders by courier.
func (s *Store) AcceptedLoadByRestaurant(ctx context.Context, restaurantID types.ID) ([]CourierLoad, error) {
	rows, err := s.db.Query(ctx, `
		SELECT courier_id, COUNT(*)
		FROM orders
		WHERE restaurant_id = $1 AND status = 'accepted' AND courier_id IS NOT NULL
		GROUP BY courier_id
		ORDER BY courier_id`,
		string(restaurantID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []CourierLoad
	for rows.Next() {
		var l CourierLoad
		var id string
		if err := rows.Scan(&id, &l.Count); err != nil {
			return nil, err
		}
		l.CourierID = types.ID(id)
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var courierID, intentID sql.NullString
	var estimatedAt, acceptedAt, deliveredAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.Status, &o.StatusVersion, &o.RestaurantID, &courierID,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.Street, &o.City, &o.State, &o.ZipCode,
		&o.Cost.Amount, &intentID, &o.PaymentMethodRef,
		&estimatedAt, &acceptedAt, &deliveredAt, &o.Trace, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Cost.Currency = "USD"
	if courierID.Valid {
		c := types.ID(courierID.String)
		o.CourierID = &c
	}
	if intentID.Valid {
		o.PaymentIntentID = &intentID.String
	}
	o.EstimatedDeliveryAt = timePtr(estimatedAt)
	o.AcceptedAt = timePtr(acceptedAt)
	o.DeliveredAt = timePtr(deliveredAt)
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

var _ Repository = (*Store)(nil)
