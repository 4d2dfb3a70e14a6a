package adapter

import (
	"context"

	"github.com/kairoshq/kairos/internal/store"
)

// StoreContactVerifier answers contact checks from the users' own contact
// lists. It stands in for an external verification service.
type StoreContactVerifier struct {
	store *store.Worker
}

func NewStoreContactVerifier(s *store.Worker) *StoreContactVerifier {
	return &StoreContactVerifier{store: s}
}

// IsContact reports whether userA is a verified contact of userB.
func (v *StoreContactVerifier) IsContact(ctx context.Context, userA, userB string) (bool, error) {
	u, err := v.store.GetUser(userB)
	if err != nil {
		return false, err
	}
	return u.HasContact(userA), nil
}
