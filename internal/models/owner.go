package models

import (
	"errors"
	"fmt"
)

// Owner types. A wallet belongs to exactly one of them.
const (
	OwnerTypeUser         = "user"
	OwnerTypeProfessional = "professional"
)

var ErrInvalidOwner = errors.New("invalid wallet owner")

// OwnerRef identifies the holder of a wallet. It is resolved once from the
// authenticated identity and passed explicitly through every ledger call.
type OwnerRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func UserOwner(id string) OwnerRef {
	return OwnerRef{Type: OwnerTypeUser, ID: id}
}

func ProfessionalOwner(id string) OwnerRef {
	return OwnerRef{Type: OwnerTypeProfessional, ID: id}
}

// ParseOwner builds an OwnerRef from loose input such as a request body.
func ParseOwner(ownerType, id string) (OwnerRef, error) {
	o := OwnerRef{Type: ownerType, ID: id}
	if err := o.Validate(); err != nil {
		return OwnerRef{}, err
	}
	return o, nil
}

func (o OwnerRef) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOwner)
	}
	switch o.Type {
	case OwnerTypeUser, OwnerTypeProfessional:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOwner, o.Type)
	}
}

func (o OwnerRef) IsProfessional() bool {
	return o.Type == OwnerTypeProfessional
}

// Key is the stable string form used for cache keys and map lookups.
func (o OwnerRef) Key() string {
	return o.Type + ":" + o.ID
}

func (o OwnerRef) String() string {
	return o.Key()
}
