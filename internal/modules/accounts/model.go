// README: Courier and restaurant profiles consumed by dispatch.
package accounts

import "mealdrop/internal/types"

type Courier struct {
	ID               types.ID `json:"id"`
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone"`
	PayoutAccountRef string   `json:"-"`
}

type Restaurant struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Street      string   `json:"street"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	ZipCode     string   `json:"zip_code"`
	CustomerRef string   `json:"-"`
}

// Address renders the mailing address used for geocoding and routing.
func (r Restaurant) Address() string {
	return r.Street + ", " + r.City + ", " + r.State + ", " + r.ZipCode
}
