// README: Account store backed by PostgreSQL.
package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mealdrop/internal/types"
)

var ErrNotFound = errors.New("account not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetCourier(ctx context.Context, id types.ID) (*Courier, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, payout_account_ref
		FROM couriers
		WHERE id = $1`, string(id),
	)
	var c Courier
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.PayoutAccountRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetRestaurant(ctx context.Context, id types.ID) (*Restaurant, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, email, phone, street, city, state, zip_code, customer_ref
		FROM restaurants
		WHERE id = $1`, string(id),
	)
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &r.Street, &r.City, &r.State, &r.ZipCode, &r.CustomerRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
