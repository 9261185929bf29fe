package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/queue/memory"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []harvest.BusinessRecord
}

func (f *fakeQueue) Dequeue(context.Context) (harvest.BusinessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return harvest.BusinessRecord{}, memory.ErrClosed
	}
	item := f.items[0]
	f.items = f.items[1:]
	return item, nil
}

type fakeHarvester struct {
	mu       sync.Mutex
	results  map[string]harvest.Result
	sessions []harvest.Session
}

func (f *fakeHarvester) Harvest(_ context.Context, session harvest.Session, website, _ string) harvest.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	if res, ok := f.results[website]; ok {
		return res
	}
	return harvest.Result{Website: website, Status: harvest.StatusSkipped, Emails: []string{}}
}

type fakeSession struct{ harvest.Session }

type fakePool struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (f *fakePool) Acquire(context.Context) (harvest.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return &fakeSession{}, nil
}

func (f *fakePool) Release(harvest.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

type fakeStore struct {
	mu      sync.Mutex
	updates map[string]harvest.Update
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: map[string]harvest.Update{}}
}

func (f *fakeStore) FetchPending(context.Context, int) ([]harvest.BusinessRecord, error) {
	return nil, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, update harvest.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates[id] = update
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []any
	topics   []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, payload)
	return fmt.Sprintf("msg-%d", len(f.messages)), nil
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func manyEmails(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%d@shop.test", i)
	}
	return out
}

func TestWorker_ProcessPersistsAndPublishes(t *testing.T) {
	t.Parallel()

	harvester := &fakeHarvester{results: map[string]harvest.Result{
		"shop.test": {
			Status:         harvest.StatusFound,
			Emails:         manyEmails(12),
			SocialProfiles: harvest.SocialProfiles{harvest.PlatformFacebook: "https://facebook.com/shop"},
		},
	}}
	pool := &fakePool{}
	store := newFakeStore()
	publisher := &fakePublisher{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w := New(&fakeQueue{}, harvester, pool, store, publisher, fakeClock{now: now},
		Config{Topic: "harvests", RunID: "run-1"}, zap.NewNop())

	out := w.Process(context.Background(), harvest.BusinessRecord{ID: "1", Website: "shop.test", BusinessName: "Shop"})
	require.True(t, out.Persisted)
	require.Equal(t, harvest.StatusFound, out.Result.Status)

	update := store.updates["1"]
	require.Equal(t, harvest.StatusFound, update.Status)
	require.Len(t, update.Emails, 10)
	require.Equal(t, "user0@shop.test", update.Emails[0])
	require.Equal(t, now, update.ScrapedAt)
	require.Equal(t, "https://facebook.com/shop", update.SocialProfiles[harvest.PlatformFacebook])

	require.Equal(t, 1, pool.acquired)
	require.Equal(t, 1, pool.released)
	require.IsType(t, &fakeSession{}, harvester.sessions[0])

	require.Equal(t, []string{"harvests"}, publisher.topics)
	event, ok := publisher.messages[0].(harvest.Event)
	require.True(t, ok)
	require.Equal(t, "run-1", event.RunID)
	require.Equal(t, "1", event.RecordID)
	require.Equal(t, now, event.FinishedAt)
}

func TestWorker_SkippedRecordNeedsNoSession(t *testing.T) {
	t.Parallel()

	harvester := &fakeHarvester{}
	pool := &fakePool{}
	store := newFakeStore()
	w := New(&fakeQueue{}, harvester, pool, store, nil, nil, Config{}, nil)

	out := w.Process(context.Background(), harvest.BusinessRecord{ID: "2", Website: "N/A"})
	require.Equal(t, harvest.StatusSkipped, out.Result.Status)
	require.Zero(t, pool.acquired)
	require.Nil(t, harvester.sessions[0])
	require.Equal(t, harvest.StatusSkipped, store.updates["2"].Status)
	require.NotNil(t, store.updates["2"].Emails)
}

func TestWorker_AcquireFailureMarksFailed(t *testing.T) {
	t.Parallel()

	harvester := &fakeHarvester{}
	pool := &fakePool{err: errors.New("chrome not found")}
	store := newFakeStore()
	w := New(&fakeQueue{}, harvester, pool, store, nil, nil, Config{}, nil)

	out := w.Process(context.Background(), harvest.BusinessRecord{ID: "3", Website: "shop.test"})
	require.Equal(t, harvest.StatusFailed, out.Result.Status)
	require.ErrorContains(t, out.Result.Err, "chrome not found")
	require.Empty(t, harvester.sessions)
	require.Zero(t, pool.released)
	require.Equal(t, harvest.StatusFailed, store.updates["3"].Status)
}

func TestWorker_StoreFailureKeepsResult(t *testing.T) {
	t.Parallel()

	harvester := &fakeHarvester{results: map[string]harvest.Result{
		"shop.test": {Status: harvest.StatusFound, Emails: []string{"info@shop.test"}},
	}}
	store := newFakeStore()
	store.err = errors.New("connection reset")
	publisher := &fakePublisher{}
	w := New(&fakeQueue{}, harvester, &fakePool{}, store, publisher, nil, Config{Topic: "harvests"}, nil)

	out := w.Process(context.Background(), harvest.BusinessRecord{ID: "4", Website: "shop.test"})
	require.False(t, out.Persisted)
	require.Equal(t, harvest.StatusFound, out.Result.Status)
	require.Empty(t, publisher.messages, "unpersisted results are not announced")
}

func TestWorker_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	harvester := &fakeHarvester{results: map[string]harvest.Result{
		"shop.test": {Status: harvest.StatusChecked, Emails: []string{}},
	}}
	publisher := &fakePublisher{err: errors.New("pub failure")}
	store := newFakeStore()
	w := New(&fakeQueue{}, harvester, &fakePool{}, store, publisher, nil, Config{Topic: "harvests"}, nil)

	out := w.Process(context.Background(), harvest.BusinessRecord{ID: "5", Website: "shop.test"})
	require.True(t, out.Persisted)
	require.Equal(t, harvest.StatusChecked, store.updates["5"].Status)
}

func TestWorker_RunDrainsQueue(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{items: []harvest.BusinessRecord{
		{ID: "a", Website: "N/A"},
		{ID: "b", Website: ""},
		{ID: "c", Website: "n/a"},
	}}
	store := newFakeStore()
	w := New(queue, &fakeHarvester{}, &fakePool{}, store, nil, nil, Config{}, nil)

	results := make(chan Outcome, 3)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), results)
		close(done)
	}()

	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	close(results)

	var ids []string
	for out := range results {
		ids = append(ids, out.Record.ID)
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
	require.Len(t, store.updates, 3)
}

func TestCapEmails(t *testing.T) {
	t.Parallel()

	require.Len(t, capEmails(manyEmails(3), 10), 3)
	require.Len(t, capEmails(manyEmails(11), 10), 10)
	require.NotNil(t, capEmails(nil, 10))
}
