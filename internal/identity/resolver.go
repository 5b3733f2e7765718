// Package identity resolves humans across provider identity systems to a
// single canonical Person node.
//
// Strategy: email as master key. The normalized email is the canonical
// identifier; when no email is available, resolution falls back to a
// (provider, external id) derived id, which is stable but not guaranteed
// unique across providers for the same human.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/collabgraph/collabgraph-go/internal/models"
)

// ErrMissingIdentifier is returned when resolution is attempted with neither
// an email nor a (provider, external id) pair. The caller must skip the
// dependent sub-entity; no node is created.
var ErrMissingIdentifier = errors.New("identity: neither email nor provider/external_id supplied")

// Store is the slice of the graph store identity resolution needs.
type Store interface {
	FindPersonIDByEmail(ctx context.Context, email string) (string, bool, error)
	MergePerson(ctx context.Context, p models.Person) error
}

// Input carries everything known about a provider-side user at the point of
// resolution. Empty strings mean absent.
type Input struct {
	Email      string
	Name       string
	Provider   string
	ExternalID string
	URL        string
}

// canonicalPersonID derives the Person node id for an input, preferring the
// email-based id. The email must already be normalized.
func canonicalPersonID(in Input) (string, error) {
	if in.Email != "" {
		return models.PersonIDFromEmail(in.Email), nil
	}
	if in.Provider != "" && in.ExternalID != "" {
		return models.PersonIDFromProvider(in.Provider, in.ExternalID), nil
	}
	return "", ErrMissingIdentifier
}

// Resolver performs stateless lookup-or-create identity resolution. Every
// call is a store round-trip; per-run memoization is PersonCache's job.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the canonical person id for the input, creating a Person
// node when no existing one matches.
//
// When an email is present and a Person already holds it, that node's id is
// returned untouched even if it differs from the freshly computed canonical
// id: the first Person created for an email wins the id.
func (r *Resolver) Resolve(ctx context.Context, in Input) (personID string, isNew bool, err error) {
	in.Email = models.NormalizeEmail(in.Email)

	personID, err = canonicalPersonID(in)
	if err != nil {
		return "", false, err
	}

	if in.Email != "" {
		existingID, found, err := r.store.FindPersonIDByEmail(ctx, in.Email)
		if err != nil {
			return "", false, fmt.Errorf("resolve %s: %w", in.Email, err)
		}
		if found {
			return existingID, false, nil
		}
	}

	person := models.Person{
		ID:    personID,
		Name:  in.Name,
		Email: in.Email,
		URL:   in.URL,
	}
	if err := r.store.MergePerson(ctx, person); err != nil {
		return "", false, fmt.Errorf("create person %s: %w", personID, err)
	}
	return personID, true, nil
}
