package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/catalogxlate/internal/core"
)

// Credentials implements core.CredentialStore over store_credentials.
type Credentials struct {
	db DBTX
}

// NewCredentials returns a credential store over db.
func NewCredentials(db DBTX) *Credentials {
	return &Credentials{db: db}
}

var _ core.CredentialStore = (*Credentials)(nil)

// StoreToken returns core.ErrNoCredentials for an unknown or blank store.
func (c *Credentials) StoreToken(ctx context.Context, storeHash string) (string, error) {
	var token string
	err := c.db.QueryRow(ctx,
		`SELECT access_token FROM store_credentials WHERE store_hash = $1`, storeHash,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && token == "") {
		return "", fmt.Errorf("store %s: %w", storeHash, core.ErrNoCredentials)
	}
	if err != nil {
		return "", fmt.Errorf("load credentials for %s: %w", storeHash, err)
	}
	return token, nil
}

// SaveToken upserts the access token of a store. The install handshake
// that obtains tokens lives outside this service; SaveToken is its hook and
// the seed path for local setups.
func (c *Credentials) SaveToken(ctx context.Context, storeHash, token string) error {
	_, err := c.db.Exec(ctx,
		`INSERT INTO store_credentials (store_hash, access_token) VALUES ($1, $2)
		ON CONFLICT (store_hash) DO UPDATE SET access_token = EXCLUDED.access_token, updated_at = now()`,
		storeHash, token,
	)
	if err != nil {
		return fmt.Errorf("save credentials for %s: %w", storeHash, err)
	}
	return nil
}
