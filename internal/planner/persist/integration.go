package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/studyplan/internal/cryptox"
	"github.com/dmitrijs2005/studyplan/internal/planner/remote"
)

var ErrNotConnected = errors.New("no calendar integration stored")

// IntegrationState is the persisted calendar-integration record: the managed
// calendar id and the credential encrypted at rest. It has a defined
// lifecycle (loaded at startup, cleared on disconnect) instead of living
// in a process-global variable.
type IntegrationState struct {
	CalendarID string
	Credential []byte // AEAD ciphertext of the access token
	Nonce      []byte
	Salt       []byte // argon2 salt for the passphrase-derived key
	LastSync   *time.Time
}

// IntegrationRepository stores the single integration row.
type IntegrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) Get(ctx context.Context) (IntegrationState, error) {
	query := `SELECT calendar_id, credential, nonce, salt, last_sync FROM integration WHERE id = 1`

	var (
		st       IntegrationState
		lastSync sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query).
		Scan(&st.CalendarID, &st.Credential, &st.Nonce, &st.Salt, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return IntegrationState{}, ErrNotConnected
	}
	if err != nil {
		return IntegrationState{}, fmt.Errorf("failed to load integration state: %w", err)
	}

	if lastSync.Valid {
		t, err := time.Parse(time.RFC3339, lastSync.String)
		if err != nil {
			return IntegrationState{}, fmt.Errorf("bad last_sync %q: %w", lastSync.String, err)
		}
		st.LastSync = &t
	}
	return st, nil
}

func (r *IntegrationRepository) Save(ctx context.Context, st IntegrationState) error {
	query := `INSERT INTO integration (id, calendar_id, credential, nonce, salt, last_sync)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET calendar_id = excluded.calendar_id,
			credential = excluded.credential,
			nonce = excluded.nonce,
			salt = excluded.salt,
			last_sync = excluded.last_sync`

	var lastSync any
	if st.LastSync != nil {
		lastSync = st.LastSync.Format(time.RFC3339)
	}
	_, err := r.db.ExecContext(ctx, query,
		st.CalendarID, st.Credential, st.Nonce, st.Salt, lastSync)
	if err != nil {
		return fmt.Errorf("failed to save integration state: %w", err)
	}
	return nil
}

// Clear removes the integration row entirely; the user must reconnect.
func (r *IntegrationRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM integration WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear integration state: %w", err)
	}
	return nil
}

// CredentialStore adapts the integration repository to the sync engine's
// credential contract. The AEAD key is derived once at unlock from the
// user's passphrase and the stored salt.
type CredentialStore struct {
	repo *IntegrationRepository
	key  []byte
}

func NewCredentialStore(repo *IntegrationRepository, key []byte) *CredentialStore {
	return &CredentialStore{repo: repo, key: key}
}

func (c *CredentialStore) Credential(ctx context.Context) (remote.Credential, error) {
	st, err := c.repo.Get(ctx)
	if err != nil {
		return remote.Credential{}, err
	}
	if st.CalendarID == "" || len(st.Credential) == 0 {
		return remote.Credential{}, ErrNotConnected
	}

	var token string
	if err := cryptox.Decrypt(st.Credential, st.Nonce, c.key, &token); err != nil {
		return remote.Credential{}, fmt.Errorf("decrypting credential: %w", err)
	}
	return remote.Credential{AccessToken: token, CalendarID: st.CalendarID}, nil
}

// Invalidate disconnects the integration after the vendor rejected the
// credential.
func (c *CredentialStore) Invalidate(ctx context.Context) error {
	return c.repo.Clear(ctx)
}
