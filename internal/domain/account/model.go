package account

import "time"

// Account represents one registered principal. Email is stored in normalized
// form (lowercase, trimmed) and is unique across the store.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile holds the optional display attributes attached one-to-one to an
// account. It is created lazily on the first profile write.
type Profile struct {
	AccountID string
	Bio       string
	Phone     string
	Address   string
	City      string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfilePatch carries the fields of a partial profile update. Nil pointers
// mean "leave unchanged".
type ProfilePatch struct {
	Bio     *string `json:"bio,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	City    *string `json:"city,omitempty"`
	Country *string `json:"country,omitempty"`
}

// Public is the client-safe projection of an account. Credential material
// never leaves the store boundary.
type Public struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PublicView returns the client-safe projection of a.
func (a Account) PublicView() Public {
	return Public{ID: a.ID, Name: a.Name, Email: a.Email}
}
