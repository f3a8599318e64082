package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
)

// fakeFinder serves canned tasks and records the queries it receives.
type fakeFinder struct {
	byFingerprint map[string][]ir.Task
	byOwner       []ir.Task
	err           error

	ownerQueries []string
}

func (f *fakeFinder) FindByFingerprint(_ context.Context, fp string) ([]ir.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byFingerprint[fp], nil
}

func (f *fakeFinder) FindByTriggerAndOwnerEmail(_ context.Context, trigger, email string) ([]ir.Task, error) {
	f.ownerQueries = append(f.ownerQueries, trigger+"|"+email)
	if f.err != nil {
		return nil, f.err
	}
	return f.byOwner, nil
}

func taskIDs(tasks []ir.Task) []int64 {
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func TestCorrelate_FingerprintOnly(t *testing.T) {
	fp := ir.Fingerprint("push_event", []string{"area", "main"})
	finder := &fakeFinder{byFingerprint: map[string][]ir.Task{
		fp: {{ID: 1}, {ID: 2}},
	}}
	c := NewCorrelator(catalog.MustDefault())

	tasks, err := c.Correlate(context.Background(), finder, pushEvent())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, taskIDs(tasks))
	assert.Empty(t, finder.ownerQueries, "non-special triggers skip the predicate query")
}

func TestCorrelate_NoMatchIsNotAnError(t *testing.T) {
	c := NewCorrelator(catalog.MustDefault())

	tasks, err := c.Correlate(context.Background(), &fakeFinder{}, pushEvent())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCorrelate_SpecialTriggerPredicate(t *testing.T) {
	finder := &fakeFinder{byOwner: []ir.Task{
		{ID: 10, TriggerArgs: []string{"p", "s", "alice@example.com", "only_from"}},
		{ID: 11, TriggerArgs: []string{"p", "s", "bob@example.com", "only_from"}},
		{ID: 12, TriggerArgs: []string{"p", "s", "pau@example.com", "only_to"}},
		{ID: 13, TriggerArgs: []string{"p", "s", "alice@example.com"}},
		{ID: 14, TriggerArgs: []string{"p", "s", "alice@example.com", "only_cc"}},
	}}
	c := NewCorrelator(catalog.MustDefault())

	ev := ir.InboundEvent{
		TriggerName:   "email_received",
		Service:       "google",
		Params:        map[string]string{"email": "pau@example.com"},
		ContextParams: map[string]string{"from": "alice@example.com", "to": "pau@example.com"},
	}
	tasks, err := c.Correlate(context.Background(), finder, ev)
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 12}, taskIDs(tasks))
	assert.Equal(t, []string{"email_received|pau@example.com"}, finder.ownerQueries)
}

func TestCorrelate_MissingContextFieldNeverMatches(t *testing.T) {
	finder := &fakeFinder{byOwner: []ir.Task{
		{ID: 1, TriggerArgs: []string{"p", "s", "", "only_from"}},
	}}
	c := NewCorrelator(catalog.MustDefault())

	ev := ir.InboundEvent{
		TriggerName: "email_sent",
		Service:     "google",
		Params:      map[string]string{"email": "pau@example.com"},
	}
	tasks, err := c.Correlate(context.Background(), finder, ev)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCorrelate_SpecialTriggerWithoutOwnerEmail(t *testing.T) {
	finder := &fakeFinder{byOwner: []ir.Task{
		{ID: 1, TriggerArgs: []string{"p", "s", "alice@example.com", "only_from"}},
	}}
	c := NewCorrelator(catalog.MustDefault())

	ev := ir.InboundEvent{
		TriggerName:   "email_received",
		Service:       "google",
		ContextParams: map[string]string{"from": "alice@example.com"},
	}
	tasks, err := c.Correlate(context.Background(), finder, ev)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, finder.ownerQueries)
}

func TestCorrelate_UnionDeduplicatesByID(t *testing.T) {
	fp := ir.Fingerprint("email_received", []string{"pau@example.com"})
	shared := ir.Task{ID: 5, TriggerArgs: []string{"p", "s", "alice@example.com", "only_from"}}
	finder := &fakeFinder{
		byFingerprint: map[string][]ir.Task{fp: {{ID: 3}, shared}},
		byOwner:       []ir.Task{shared, {ID: 7, TriggerArgs: []string{"p", "s", "alice@example.com", "only_from"}}},
	}
	c := NewCorrelator(catalog.MustDefault())

	ev := ir.InboundEvent{
		TriggerName:   "email_received",
		Service:       "google",
		Params:        map[string]string{"email": "pau@example.com"},
		ContextParams: map[string]string{"from": "alice@example.com"},
	}
	tasks, err := c.Correlate(context.Background(), finder, ev)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 7}, taskIDs(tasks))
}

func TestCorrelate_PropagatesFinderError(t *testing.T) {
	c := NewCorrelator(catalog.MustDefault())
	boom := errors.New("disk on fire")

	_, err := c.Correlate(context.Background(), &fakeFinder{err: boom}, pushEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "correlate push_event")
}
