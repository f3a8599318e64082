package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/ir"
)

var testTime = time.Date(2024, 10, 28, 11, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-dir SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestIdentity inserts an identity with the given username and email.
func createTestIdentity(t *testing.T, s *Store, username, email string) ir.Identity {
	t.Helper()
	id, err := s.CreateIdentity(context.Background(), ir.Identity{
		Username: username,
		Email:    email,
	})
	require.NoError(t, err)
	return id
}

// newTestTask builds a task with minimal required fields.
func newTestTask(ownerID int64, trigger string, args ...string) ir.Task {
	return ir.Task{
		OwnerID:      ownerID,
		Trigger:      trigger,
		TriggerArgs:  args,
		ReactionName: "send_email",
		ReactionArgs: []string{},
		Service:      "github",
	}
}
