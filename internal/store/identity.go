package store

import (
	"context"
	"fmt"

	"github.com/roach88/area/internal/ir"
)

// CreateIdentity inserts an identity and returns it with its id.
func (c conn) CreateIdentity(ctx context.Context, id ir.Identity) (ir.Identity, error) {
	err := c.queryRow(ctx, `
		INSERT INTO users (username, email, phone_number, first_name, last_name)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, id.Username, id.Email, id.PhoneNumber, id.FirstName, id.LastName).Scan(&id.ID)
	if isUniqueViolation(err) {
		return ir.Identity{}, fmt.Errorf("create identity %q: %w", id.Username, ErrConflict)
	}
	if err != nil {
		return ir.Identity{}, fmt.Errorf("create identity %q: %w", id.Username, err)
	}
	return id, nil
}

// GetIdentity returns an identity by id.
func (c conn) GetIdentity(ctx context.Context, id int64) (ir.Identity, error) {
	var out ir.Identity
	err := c.queryRow(ctx, `
		SELECT id, username, email, phone_number, first_name, last_name
		FROM users WHERE id = ?
	`, id).Scan(&out.ID, &out.Username, &out.Email, &out.PhoneNumber, &out.FirstName, &out.LastName)
	if isNoRows(err) {
		return ir.Identity{}, fmt.Errorf("get identity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Identity{}, fmt.Errorf("get identity %d: %w", id, err)
	}
	return out, nil
}

// ListIdentities returns every identity ordered by id.
func (c conn) ListIdentities(ctx context.Context) ([]ir.Identity, error) {
	rows, err := c.query(ctx, `
		SELECT id, username, email, phone_number, first_name, last_name
		FROM users ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []ir.Identity
	for rows.Next() {
		var id ir.Identity
		if err := rows.Scan(&id.ID, &id.Username, &id.Email, &id.PhoneNumber, &id.FirstName, &id.LastName); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// DeleteIdentity removes an identity. Its tasks, dedup records, and tokens
// are removed by cascade.
func (c conn) DeleteIdentity(ctx context.Context, id int64) error {
	result, err := c.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete identity %d: %w", id, err)
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("delete identity %d: %w", id, err)
	}
	return nil
}
