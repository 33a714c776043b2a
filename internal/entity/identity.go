package entity

import (
	"fmt"
	"strings"
)

type IdentityKind string

const (
	IdentityGuest   IdentityKind = "guest"
	IdentityAccount IdentityKind = "account"
)

// Identity is who an order is placed for. It is attached at order-build time only.
type Identity struct {
	Kind    IdentityKind `json:"-"`
	Name    string       `json:"name"`
	Contact string       `json:"contact"`
}

func GuestIdentity(name, contact string) Identity {
	return Identity{Kind: IdentityGuest, Name: strings.TrimSpace(name), Contact: strings.TrimSpace(contact)}
}

func AccountIdentity(fullName, phoneNumber string) Identity {
	return Identity{Kind: IdentityAccount, Name: strings.TrimSpace(fullName), Contact: strings.TrimSpace(phoneNumber)}
}

func (i Identity) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidIdentity)
	}
	if i.Contact == "" {
		return fmt.Errorf("%w: contact is required", ErrInvalidIdentity)
	}
	return nil
}

// Account is the logged-in shopper as resolved by the identity service.
type Account struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
}

func (a Account) Identity() Identity {
	return AccountIdentity(a.FullName, a.PhoneNumber)
}
