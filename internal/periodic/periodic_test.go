package periodic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

type fakeLock struct {
	mu      sync.Mutex
	held    map[string]bool
	failGet error
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]bool{}} }

func (l *fakeLock) TryAcquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if l.failGet != nil {
		return false, l.failGet
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

func TestScheduler_RunLocked_SkipsWhenAlreadyHeld(t *testing.T) {
	lock := newFakeLock()
	s := NewScheduler(lock, time.Minute)

	var calls int
	fn := func(context.Context) error { calls++; return nil }

	ran1, err := s.RunLocked(context.Background(), "reflect", "ws1", fn)
	require.NoError(t, err)
	require.True(t, ran1)

	lock.mu.Lock()
	lock.held[lockKey("reflect", "ws1")] = true // simulate still-held lock from a concurrent run
	lock.mu.Unlock()

	ran2, err := s.RunLocked(context.Background(), "reflect", "ws1", fn)
	require.NoError(t, err)
	require.False(t, ran2)
	require.Equal(t, 1, calls)
}

func TestScheduler_RunLocked_ReleasesAfterRunAllowingNextCall(t *testing.T) {
	lock := newFakeLock()
	s := NewScheduler(lock, time.Minute)

	var calls int
	fn := func(context.Context) error { calls++; return nil }

	_, err := s.RunLocked(context.Background(), "cache_rebuild", "ws1", fn)
	require.NoError(t, err)
	_, err = s.RunLocked(context.Background(), "cache_rebuild", "ws1", fn)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

type fakeLister struct {
	ids []string
	err error
}

func (f *fakeLister) ListEndUserIDs(context.Context, time.Time) ([]string, error) {
	return f.ids, f.err
}

type fakeInsight struct {
	refreshed []string
	failFor   map[string]bool
}

func (f *fakeInsight) Refresh(_ context.Context, endUserID string) error {
	if f.failFor[endUserID] {
		return errors.New("refresh failed")
	}
	f.refreshed = append(f.refreshed, endUserID)
	return nil
}

type scriptedLLM struct{ text string }

func (s *scriptedLLM) Embed(context.Context, string, []string) ([][]float32, error) { return nil, nil }
func (s *scriptedLLM) Chat(context.Context, string, []provider.Message, provider.ChatOptions) (provider.ChatResult, error) {
	return provider.ChatResult{Text: s.text}, nil
}
func (s *scriptedLLM) ChatStream(context.Context, string, []provider.Message, provider.ChatOptions, provider.StreamHandler) error {
	return nil
}

func seedStatement(t *testing.T, store graphstore.GraphStore, endUserID, text string) {
	t.Helper()
	err := store.UpsertIngestedBatch(context.Background(), graphstore.IngestBatch{
		EndUserID: endUserID,
		Statements: []graphstore.Node{{
			ID:        "stmt-" + text,
			EndUserID: endUserID,
			Labels:    []string{"Statement"},
			Props:     map[string]any{"statement": text},
			IsActive:  true,
		}},
	})
	require.NoError(t, err)
}

func TestReflectionSweep_SummarizesStatementsAndRefreshesInsight(t *testing.T) {
	store := graphstore.NewMemory()
	seedStatement(t, store, "user-1", "likes tea")
	seedStatement(t, store, "user-1", "works as an engineer")

	insight := &fakeInsight{failFor: map[string]bool{}}
	sweep := &ReflectionSweep{
		Store:   store,
		Lister:  &fakeLister{ids: []string{"user-1"}},
		LLM:     &scriptedLLM{text: "User likes tea and works as an engineer."},
		Insight: insight,
	}

	failed, err := sweep.Run(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Equal(t, []string{"user-1"}, insight.refreshed)
}

func TestReflectionSweep_SkipsUserWithNoStatements(t *testing.T) {
	store := graphstore.NewMemory()
	insight := &fakeInsight{failFor: map[string]bool{}}
	sweep := &ReflectionSweep{
		Store:   store,
		Lister:  &fakeLister{ids: []string{"user-empty"}},
		LLM:     &scriptedLLM{text: "should not be called"},
		Insight: insight,
	}

	failed, err := sweep.Run(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Empty(t, insight.refreshed)
}

func TestCacheRegeneration_RunAll_CollectsFailures(t *testing.T) {
	insight := &fakeInsight{failFor: map[string]bool{"bad-user": true}}
	cr := &CacheRegeneration{
		Lister:  &fakeLister{ids: []string{"user-1", "bad-user"}},
		Insight: insight,
	}

	failed, err := cr.RunAll(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"bad-user"}, failed)
	require.Equal(t, []string{"user-1"}, insight.refreshed)
}

func TestCacheRegeneration_RunOne_TargetsSingleUser(t *testing.T) {
	insight := &fakeInsight{failFor: map[string]bool{}}
	cr := &CacheRegeneration{Insight: insight}
	require.NoError(t, cr.RunOne(context.Background(), "user-42"))
	require.Equal(t, []string{"user-42"}, insight.refreshed)
}

func TestHealthProbe_Run_FailWithoutPool(t *testing.T) {
	h := &HealthProbe{}
	result, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFail, result.Status)
	require.Equal(t, "database pool unavailable", result.Error)
}
