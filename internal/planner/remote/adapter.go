// Package remote translates session records to and from the external
// calendar's event representation and performs list/create/update/delete
// calls against it. The rest of the engine never sees the wire format.
package remote

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredential is fatal to a sync pass: the integration is
	// disconnected rather than retried with bad credentials.
	ErrInvalidCredential = errors.New("invalid or expired credential")

	// ErrTransient covers network failures and 5xx responses. The next
	// scheduled pass retries; no user-visible error is required.
	ErrTransient = errors.New("transient remote failure")

	// ErrNotFound reports a remote object missing on update. Missing on
	// delete is not an error at all: the object is already in the desired
	// terminal state.
	ErrNotFound = errors.New("remote event not found")
)

// Credential authorizes calls against the external calendar service.
type Credential struct {
	// AccessToken is the bearer token presented to the vendor.
	AccessToken string

	// CalendarID is the managed calendar all planner events live in. It is
	// persisted integration state, loaded at startup and refreshed on
	// disconnect.
	CalendarID string
}

// Event is the adapter-level event representation: the minimum the engine
// needs, independent of the vendor's wire format.
type Event struct {
	// ID is the vendor-assigned event identifier.
	ID string

	Title string
	Start time.Time
	End   time.Time

	// Meta is the planner-ownership metadata round-tripped through the
	// vendor's opaque extended-properties field. Events without it are not
	// planner-owned and are never imported.
	Meta *Metadata
}

// Adapter is the request/response contract with the external calendar.
// Implementations map vendor failures onto the package's sentinel errors so
// callers classify outcomes with errors.Is instead of inspecting messages.
type Adapter interface {
	// ListManagedEvents returns only events tagged with this application's
	// ownership metadata.
	ListManagedEvents(ctx context.Context, cred Credential) ([]Event, error)

	// CreateEvent pushes a new event and returns the vendor's id for it.
	CreateEvent(ctx context.Context, cred Credential, ev Event) (string, error)

	// UpdateEvent rewrites an existing event in place.
	UpdateEvent(ctx context.Context, cred Credential, externalID string, ev Event) error

	// DeleteEvent removes an event; an already-gone event is success.
	DeleteEvent(ctx context.Context, cred Credential, externalID string) error

	// ValidateCredential returns nil when the credential is usable, or
	// ErrInvalidCredential (wrapped with the vendor's reason) when it is not.
	ValidateCredential(ctx context.Context, cred Credential) error
}
