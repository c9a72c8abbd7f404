package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTimeout  = 15 * time.Second
	retryAttempts   = 3
	retryBaseDelay  = 200 * time.Millisecond
	propertyBucket  = "private"
	maxErrorBodyLen = 512
)

// HTTPAdapter implements Adapter against the vendor's JSON API:
//
//	GET    {base}/calendars/{cal}            credential check
//	GET    {base}/calendars/{cal}/events     list
//	POST   {base}/calendars/{cal}/events     create
//	PUT    {base}/calendars/{cal}/events/{id}
//	DELETE {base}/calendars/{cal}/events/{id}
//
// Idempotent reads are retried a few times on transient failures; writes are
// not, since the next scheduled pass retries them anyway.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewHTTPAdapter(baseURL string) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		now:     time.Now,
	}
}

// wireEvent is the vendor's event payload.
type wireEvent struct {
	ID                 string                       `json:"id,omitempty"`
	Summary            string                       `json:"summary"`
	Start              time.Time                    `json:"start"`
	End                time.Time                    `json:"end"`
	ExtendedProperties map[string]map[string]string `json:"extendedProperties,omitempty"`
}

type wireEventList struct {
	Items []wireEvent `json:"items"`
}

func (a *HTTPAdapter) ListManagedEvents(ctx context.Context, cred Credential) ([]Event, error) {
	var list wireEventList
	err := a.withRetry(ctx, func() error {
		return a.doJSON(ctx, cred, http.MethodGet, a.eventsURL(cred, ""), nil, &list)
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(list.Items))
	for _, w := range list.Items {
		ev, ok := fromWire(w)
		if !ok {
			// Not planner-owned; a user's unrelated entry stays invisible.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (a *HTTPAdapter) CreateEvent(ctx context.Context, cred Credential, ev Event) (string, error) {
	body, err := toWire(ev)
	if err != nil {
		return "", err
	}
	var created wireEvent
	if err := a.doJSON(ctx, cred, http.MethodPost, a.eventsURL(cred, ""), body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("create response carried no event id")
	}
	return created.ID, nil
}

func (a *HTTPAdapter) UpdateEvent(ctx context.Context, cred Credential, externalID string, ev Event) error {
	body, err := toWire(ev)
	if err != nil {
		return err
	}
	return a.doJSON(ctx, cred, http.MethodPut, a.eventsURL(cred, externalID), body, nil)
}

func (a *HTTPAdapter) DeleteEvent(ctx context.Context, cred Credential, externalID string) error {
	err := a.doJSON(ctx, cred, http.MethodDelete, a.eventsURL(cred, externalID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		// Already gone: the desired terminal state.
		return nil
	}
	return err
}

func (a *HTTPAdapter) ValidateCredential(ctx context.Context, cred Credential) error {
	if cred.AccessToken == "" || cred.CalendarID == "" {
		return fmt.Errorf("%w: not connected", ErrInvalidCredential)
	}
	if err := a.preflightToken(cred.AccessToken); err != nil {
		return err
	}
	u := fmt.Sprintf("%s/calendars/%s", a.baseURL, url.PathEscape(cred.CalendarID))
	return a.withRetry(ctx, func() error {
		return a.doJSON(ctx, cred, http.MethodGet, u, nil, nil)
	})
}

// preflightToken rejects a token that is a JWT with an elapsed expiry before
// any network call is spent on it. Opaque non-JWT tokens pass through.
func (a *HTTPAdapter) preflightToken(token string) error {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(a.now()) {
		return fmt.Errorf("%w: token expired at %s", ErrInvalidCredential, exp.Format(time.RFC3339))
	}
	return nil
}

func (a *HTTPAdapter) eventsURL(cred Credential, eventID string) string {
	u := fmt.Sprintf("%s/calendars/%s/events", a.baseURL, url.PathEscape(cred.CalendarID))
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

func (a *HTTPAdapter) withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrTransient) }),
		retry.LastErrorOnly(true),
	)
}

// doJSON performs one request, mapping vendor failures onto the package's
// sentinel errors. out may be nil when the response body is irrelevant.
func (a *HTTPAdapter) doJSON(ctx context.Context, cred Credential, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, readErrorBody(resp))
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp))
	}
}

func readErrorBody(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	if err != nil || len(b) == 0 {
		return resp.Status
	}
	return string(b)
}

func toWire(ev Event) (*wireEvent, error) {
	w := &wireEvent{
		ID:      ev.ID,
		Summary: ev.Title,
		Start:   ev.Start,
		End:     ev.End,
	}
	if ev.Meta != nil {
		enc, err := encodeMetadata(*ev.Meta)
		if err != nil {
			return nil, err
		}
		w.ExtendedProperties = map[string]map[string]string{
			propertyBucket: {metadataKey: enc},
		}
	}
	return w, nil
}

// fromWire converts a vendor event, reporting ok=false for events that carry
// no planner metadata (or metadata that does not decode).
func fromWire(w wireEvent) (Event, bool) {
	props, ok := w.ExtendedProperties[propertyBucket]
	if !ok {
		return Event{}, false
	}
	raw, ok := props[metadataKey]
	if !ok {
		return Event{}, false
	}
	meta, err := decodeMetadata(raw)
	if err != nil {
		return Event{}, false
	}
	return Event{
		ID:    w.ID,
		Title: w.Summary,
		Start: w.Start,
		End:   w.End,
		Meta:  meta,
	}, true
}
