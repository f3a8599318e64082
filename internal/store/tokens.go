package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/area/internal/ir"
)

// PutToken inserts or replaces the token of (OwnerID, Provider).
func (c conn) PutToken(ctx context.Context, tok ir.OAuthToken) error {
	_, err := c.exec(ctx, `
		INSERT INTO oauth_tokens
		(user_id, provider, access_token, refresh_token, token_type, scope, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at
	`,
		tok.OwnerID,
		tok.Provider,
		tok.AccessToken,
		tok.RefreshToken,
		tok.TokenType,
		tok.Scope,
		nullTime(tok),
	)
	if err != nil {
		return fmt.Errorf("put %s token for %d: %w", tok.Provider, tok.OwnerID, err)
	}
	return nil
}

// GetToken returns the token of an identity for a provider.
func (c conn) GetToken(ctx context.Context, ownerID int64, provider string) (ir.OAuthToken, error) {
	var (
		tok     ir.OAuthToken
		expires sql.NullTime
	)
	err := c.queryRow(ctx, `
		SELECT user_id, provider, access_token, refresh_token, token_type, scope, expires_at
		FROM oauth_tokens
		WHERE user_id = ? AND provider = ?
	`, ownerID, provider).Scan(
		&tok.OwnerID,
		&tok.Provider,
		&tok.AccessToken,
		&tok.RefreshToken,
		&tok.TokenType,
		&tok.Scope,
		&expires,
	)
	if isNoRows(err) {
		return ir.OAuthToken{}, fmt.Errorf("get %s token for %d: %w", provider, ownerID, ErrNotFound)
	}
	if err != nil {
		return ir.OAuthToken{}, fmt.Errorf("get %s token for %d: %w", provider, ownerID, err)
	}
	if expires.Valid {
		tok.ExpiresAt = expires.Time
	}
	return tok, nil
}

func nullTime(tok ir.OAuthToken) sql.NullTime {
	if !tok.Expires() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: tok.ExpiresAt.UTC(), Valid: true}
}
