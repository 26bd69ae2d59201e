// README: Presence store backed by Redis GEO (available couriers) and Postgres (en-route samples).
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"mealdrop/internal/types"
)

const (
	availableGeoKey = "presence:available"
	freshKeyPrefix  = "presence:fresh:%s"

	// searchRadiusKm bounds the cheap straight-line pre-filter. Couriers
	// farther out than this are never considered.
	searchRadiusKm = 50
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
	ttl   time.Duration
}

// NewStore builds a presence store. ttl bounds how long an available-courier
// sample survives without a refresh.
func NewStore(db *pgxpool.Pool, redisClient *redis.Client, ttl time.Duration) *Store {
	return &Store{db: db, redis: redisClient, ttl: ttl}
}

// SetAvailable upserts the courier's position in the available index and
// refreshes its TTL. GEO members cannot expire on their own, so freshness is
// tracked by a companion key and stale members are filtered on read.
func (s *Store) SetAvailable(ctx context.Context, courierID types.ID, pos types.Point) error {
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, availableGeoKey, &redis.GeoLocation{
		Name:      string(courierID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	pipe.Set(ctx, freshKey(courierID), "1", s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveAvailable drops the courier from the available index.
func (s *Store) RemoveAvailable(ctx context.Context, courierID types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, availableGeoKey, string(courierID))
	pipe.Del(ctx, freshKey(courierID))
	_, err := pipe.Exec(ctx)
	return err
}

// NearestAvailable returns up to limit available couriers closest to origin by
// straight-line distance, skipping excluded and stale entries. Results keep
// the index scan order (nearest first).
func (s *Store) NearestAvailable(ctx context.Context, origin types.Point, limit int, excluded map[types.ID]struct{}) ([]Candidate, error) {
	results, err := s.redis.GeoSearchLocation(ctx, availableGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     searchRadiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit + len(excluded),
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, limit)
	for _, r := range results {
		id := types.ID(r.Name)
		if _, skip := excluded[id]; skip {
			continue
		}
		fresh, err := s.redis.Exists(ctx, freshKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if fresh == 0 {
			// Expired sample still present in the GEO set; reap it.
			_ = s.redis.ZRem(ctx, availableGeoKey, r.Name).Err()
			continue
		}
		candidates = append(candidates, Candidate{
			CourierID: id,
			Position:  types.Point{Lat: r.Latitude, Lng: r.Longitude},
		})
		if len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// AppendRouteSample records one en-route breadcrumb.
func (s *Store) AppendRouteSample(ctx context.Context, sample RouteSample) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO courier_route_samples (courier_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(sample.CourierID), sample.Position.Lat, sample.Position.Lng, sample.RecordedAt,
	)
	return err
}

// RouteSamplesSince returns the courier's breadcrumbs recorded at or after
// since, oldest first.
func (s *Store) RouteSamplesSince(ctx context.Context, courierID types.ID, since time.Time) ([]RouteSample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT courier_id, lat, lng, recorded_at
		FROM courier_route_samples
		WHERE courier_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC`,
		string(courierID), since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []RouteSample
	for rows.Next() {
		var sm RouteSample
		if err := rows.Scan(&sm.CourierID, &sm.Position.Lat, &sm.Position.Lng, &sm.RecordedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// LatestRouteSample returns the courier's most recent breadcrumb, or nil if
// none has been recorded yet.
func (s *Store) LatestRouteSample(ctx context.Context, courierID types.ID) (*RouteSample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT courier_id, lat, lng, recorded_at
		FROM courier_route_samples
		WHERE courier_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`,
		string(courierID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var sm RouteSample
	if err := rows.Scan(&sm.CourierID, &sm.Position.Lat, &sm.Position.Lng, &sm.RecordedAt); err != nil {
		return nil, err
	}
	return &sm, nil
}

// ClearRouteSamples drops all of the courier's breadcrumbs. Called when the
// courier returns to WAITING.
func (s *Store) ClearRouteSamples(ctx context.Context, courierID types.ID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM courier_route_samples WHERE courier_id = $1`, string(courierID))
	return err
}

func freshKey(courierID types.ID) string {
	return fmt.Sprintf(freshKeyPrefix, string(courierID))
}
