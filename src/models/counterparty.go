package models

import (
	"fmt"
	"strconv"
)

// CounterpartyKind discriminates the three reference types a counterparty
// can take.
type CounterpartyKind string

const (
	// CounterpartyUser references a registered account.
	CounterpartyUser CounterpartyKind = "user"
	// CounterpartyGuest is an opaque display name with no account behind it.
	CounterpartyGuest CounterpartyKind = "guest"
	// CounterpartyContact references a dummy contact owned by a user.
	CounterpartyContact CounterpartyKind = "contact"
)

// Counterparty is the other side of a debt or split: a registered user, a
// guest name, or a dummy contact. Guests and contacts cannot log in and never
// own ledger entries themselves.
type Counterparty struct {
	Kind      CounterpartyKind `json:"kind"`
	UserID    int64            `json:"user_id,omitempty"`
	ContactID int64            `json:"contact_id,omitempty"`
	Name      string           `json:"name,omitempty"`
}

// UserRef builds a counterparty referencing a registered user.
func UserRef(id int64) Counterparty {
	return Counterparty{Kind: CounterpartyUser, UserID: id}
}

// GuestRef builds a counterparty identified only by a display name.
func GuestRef(name string) Counterparty {
	return Counterparty{Kind: CounterpartyGuest, Name: name}
}

// ContactRef builds a counterparty referencing a dummy contact.
func ContactRef(id int64, name string) Counterparty {
	return Counterparty{Kind: CounterpartyContact, ContactID: id, Name: name}
}

// IsZero reports whether no counterparty is set.
func (c Counterparty) IsZero() bool {
	return c.Kind == ""
}

// Key returns a stable aggregation key. User and contact references key on
// their numeric id, guests on their name.
func (c Counterparty) Key() string {
	switch c.Kind {
	case CounterpartyUser:
		return "user:" + strconv.FormatInt(c.UserID, 10)
	case CounterpartyContact:
		return "contact:" + strconv.FormatInt(c.ContactID, 10)
	case CounterpartyGuest:
		return "guest:" + c.Name
	}
	return ""
}

// Validate checks that exactly the fields implied by Kind are populated.
func (c Counterparty) Validate() error {
	switch c.Kind {
	case CounterpartyUser:
		if c.UserID <= 0 {
			return fmt.Errorf("user counterparty requires a user id")
		}
	case CounterpartyGuest:
		if c.Name == "" {
			return fmt.Errorf("guest counterparty requires a name")
		}
	case CounterpartyContact:
		if c.ContactID <= 0 {
			return fmt.Errorf("contact counterparty requires a contact id")
		}
	default:
		return fmt.Errorf("unknown counterparty kind %q", c.Kind)
	}
	return nil
}
