// README: Courier location records: available candidates and en-route samples.
package presence

import (
	"time"

	"mealdrop/internal/types"
)

// Candidate is an available courier position returned by the geo index.
type Candidate struct {
	CourierID types.ID
	Position  types.Point
}

// RouteSample is one en-route breadcrumb recorded while a courier is on a job.
type RouteSample struct {
	CourierID  types.ID
	Position   types.Point
	RecordedAt time.Time
}
