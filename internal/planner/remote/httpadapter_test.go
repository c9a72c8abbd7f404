package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCred  = Credential{AccessToken: "tok", CalendarID: "cal-1"}
	testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func testEvent(sessionID string) Event {
	return Event{
		Title: "Study: math",
		Start: testStart,
		End:   testStart.Add(time.Hour),
		Meta:  &Metadata{SessionID: sessionID, CourseID: "math"},
	}
}

func TestListManagedEventsFiltersUnmanaged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/calendars/cal-1/events", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		managed, err := toWire(testEvent("s1"))
		require.NoError(t, err)
		managed.ID = "ext-1"

		resp := wireEventList{Items: []wireEvent{
			*managed,
			{ID: "ext-2", Summary: "Dentist", Start: testStart, End: testStart.Add(time.Hour)},
			{ID: "ext-3", Summary: "Garbage", ExtendedProperties: map[string]map[string]string{
				propertyBucket: {metadataKey: "not json"},
			}},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	events, err := a.ListManagedEvents(context.Background(), testCred)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ext-1", events[0].ID)
	assert.Equal(t, "s1", events[0].Meta.SessionID)
	assert.Equal(t, "math", events[0].Meta.CourseID)
}

func TestMetadataRoundTrip(t *testing.T) {
	ev := testEvent("s1")
	ev.Meta.Attended = true
	ev.Meta.PercentComplete = 75

	w, err := toWire(ev)
	require.NoError(t, err)
	back, ok := fromWire(*w)
	require.True(t, ok)
	assert.Equal(t, ev.Meta, back.Meta)
}

func TestCreateEventReturnsVendorID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var in wireEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Study: math", in.Summary)
		require.Contains(t, in.ExtendedProperties, propertyBucket)

		in.ID = "ext-42"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	id, err := a.CreateEvent(context.Background(), testCred, testEvent("s1"))
	require.NoError(t, err)
	assert.Equal(t, "ext-42", id)
}

func TestUpdateEventNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/calendars/cal-1/events/ext-1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	err := a.UpdateEvent(context.Background(), testCred, "ext-1", testEvent("s1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEventAlreadyGoneIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	require.NoError(t, a.DeleteEvent(context.Background(), testCred, "ext-1"))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrInvalidCredential},
		{http.StatusForbidden, ErrInvalidCredential},
		{http.StatusGone, ErrNotFound},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			a := NewHTTPAdapter(srv.URL)
			err := a.UpdateEvent(context.Background(), testCred, "ext-1", testEvent("s1"))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestListRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(wireEventList{})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	events, err := a.ListManagedEvents(context.Background(), testCred)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 3, calls)
}

func TestValidateCredential(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	require.NoError(t, a.ValidateCredential(context.Background(), testCred))
	assert.Equal(t, "/calendars/cal-1", path)

	require.ErrorIs(t,
		a.ValidateCredential(context.Background(), Credential{}),
		ErrInvalidCredential)
}

func TestValidateCredentialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	err := a.ValidateCredential(context.Background(), testCred)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

// unsignedJWT builds an alg=none token with the given claims; the preflight
// only parses, never verifies.
func unsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	return enc(map[string]string{"alg": "none", "typ": "JWT"}) + "." + enc(claims) + "."
}

func TestPreflightRejectsExpiredJWT(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	a.now = func() time.Time { return testStart }

	expired := unsignedJWT(t, map[string]any{"exp": testStart.Add(-time.Hour).Unix()})
	err := a.ValidateCredential(context.Background(), Credential{AccessToken: expired, CalendarID: "cal-1"})
	require.ErrorIs(t, err, ErrInvalidCredential)
	assert.Zero(t, calls, "an expired token never reaches the network")

	live := unsignedJWT(t, map[string]any{"exp": testStart.Add(time.Hour).Unix()})
	require.NoError(t, a.ValidateCredential(context.Background(),
		Credential{AccessToken: live, CalendarID: "cal-1"}))

	// Opaque non-JWT tokens pass the preflight and hit the vendor.
	require.NoError(t, a.ValidateCredential(context.Background(), testCred))
}
