package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/profile"
	"sendtime_notifier/internal/infra/sqlite"

	"github.com/sirupsen/logrus"
)

// Tuesday 2026-03-10 12:00 UTC.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db         *sql.DB
	queue      *sqlite.NotificationRepository
	profiles   *sqlite.ProfileRepository
	events     *sqlite.EngagementRepository
	cohorts    *sqlite.CohortRepository
	analytics  *sqlite.AnalyticsRepository
	logger     *logrus.Entry
	cohortSvc  *CohortService
	engagement *EngagementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	l := logrus.New()
	l.SetOutput(io.Discard)
	env := &testEnv{
		db:        db,
		queue:     sqlite.NewNotificationRepository(db),
		profiles:  sqlite.NewProfileRepository(db),
		events:    sqlite.NewEngagementRepository(db),
		cohorts:   sqlite.NewCohortRepository(db),
		analytics: sqlite.NewAnalyticsRepository(db),
		logger:    logrus.NewEntry(l),
	}
	env.cohortSvc = NewCohortService(env.cohorts, []notification.Channel{notification.ChannelEmail})
	env.engagement = NewEngagementService(env.events, nil, env.logger)
	return env
}

func (env *testEnv) addProfile(t *testing.T, userID, prefs string, mutate ...func(*profile.Profile)) {
	t.Helper()
	p := &profile.Profile{
		UserID:         userID,
		FirstName:      "Test",
		Email:          sql.NullString{String: userID + "@example.com", Valid: true},
		RawPreferences: []byte(prefs),
	}
	for _, m := range mutate {
		m(p)
	}
	if err := env.profiles.Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert profile: %v", err)
	}
}

func (env *testEnv) entry(t *testing.T, id int64) *notification.QueueEntry {
	t.Helper()
	e, err := env.queue.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	return e
}

// fakeSender records deliveries and fails while failures > 0.
type fakeSender struct {
	mu       sync.Mutex
	channel  notification.Channel
	failures int
	block    bool
	sent     []int64
}

func (f *fakeSender) Channel() notification.Channel { return f.channel }

func (f *fakeSender) Send(ctx context.Context, e *notification.QueueEntry, _ notification.Recipient) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("provider unavailable")
	}
	f.sent = append(f.sent, e.ID)
	return nil
}

type senderMap map[notification.Channel]notification.Sender

func (m senderMap) For(ch notification.Channel) (notification.Sender, bool) {
	s, ok := m[ch]
	return s, ok
}

// memCache is an in-memory ReportCache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
