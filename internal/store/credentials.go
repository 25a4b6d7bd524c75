package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"futures-bot/internal/exchange"
)

// ErrCredentialsNotConfigured is returned when a user has no usable API
// credentials. Bot starts must fail fast on it, before any execution
// unit is created.
var ErrCredentialsNotConfigured = errors.New("exchange credentials not configured")

// Credentials reads the decrypted API credentials for a user. Key
// encryption at rest is owned by an external collaborator; this reads
// whatever that layer has made available.
func (s *Store) Credentials(ctx context.Context, userID int64) (exchange.Credentials, error) {
	var creds exchange.Credentials
	err := s.pool.QueryRow(ctx, `
		SELECT api_key, api_secret, COALESCE(passphrase, '')
		FROM user_credentials WHERE user_id = $1 AND active = true`, userID).Scan(
		&creds.APIKey, &creds.APISecret, &creds.Passphrase)
	if errors.Is(err, pgx.ErrNoRows) {
		return creds, fmt.Errorf("user %d: %w", userID, ErrCredentialsNotConfigured)
	}
	if err != nil {
		return creds, err
	}
	if !creds.Configured() {
		return creds, fmt.Errorf("user %d: %w", userID, ErrCredentialsNotConfigured)
	}
	return creds, nil
}
