// README: Assignment attempt history; builds the exclusion set for reassignment.
package assignment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mealdrop/internal/types"
)

// Attempt records that an order was offered to a courier. Rows for an order
// are purged once it is accepted or cancelled.
type Attempt struct {
	OrderID   types.ID
	CourierID types.ID
	CreatedAt time.Time
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Record marks the order as having been offered to the courier.
func (s *Store) Record(ctx context.Context, orderID, courierID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO assignment_attempts (order_id, courier_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, courier_id) DO NOTHING`,
		string(orderID), string(courierID), time.Now().UTC(),
	)
	return err
}

// ExcludedCouriers returns every courier the order has already been offered to.
func (s *Store) ExcludedCouriers(ctx context.Context, orderID types.ID) (map[types.ID]struct{}, error) {
	rows, err := s.db.Query(ctx, `
		SELECT courier_id FROM assignment_attempts WHERE order_id = $1`,
		string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	excluded := make(map[types.ID]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		excluded[types.ID(id)] = struct{}{}
	}
	return excluded, rows.Err()
}

// Clear purges the order's attempt rows.
func (s *Store) Clear(ctx context.Context, orderID types.ID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM assignment_attempts WHERE order_id = $1`, string(orderID))
	return err
}
