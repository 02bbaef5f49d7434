package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/profile"
)

type dispatchFixture struct {
	env    *testEnv
	svc    *DispatchService
	sender *fakeSender
	clock  time.Time
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	env := newTestEnv(t)
	f := &dispatchFixture{env: env, sender: &fakeSender{channel: notification.ChannelEmail}, clock: testNow}
	cfg := DefaultDispatchConfig()
	cfg.SendTimeout = time.Second
	f.svc = NewDispatchService(env.queue, env.profiles, senderMap{notification.ChannelEmail: f.sender},
		env.engagement, env.cohortSvc, cfg, nil, env.logger)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *dispatchFixture) enqueue(t *testing.T, userID string, ch notification.Channel, createdAt time.Time) int64 {
	t.Helper()
	e := &notification.QueueEntry{UserID: userID, Channel: ch, Body: "hello", ScheduledFor: f.clock, CreatedAt: createdAt}
	if err := e.Normalize(f.clock); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	id, err := f.env.queue.Enqueue(context.Background(), e)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func (f *dispatchFixture) run(t *testing.T) notification.CycleReport {
	t.Helper()
	report, err := f.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return report
}

func TestDispatchSendsAndRecordsEngagement(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", emailOn, func(p *profile.Profile) {
		p.AgeBracket = "25-34"
		p.IndustryBracket = "tech"
	})
	id := f.enqueue(t, "u1", notification.ChannelEmail, testNow)

	report := f.run(t)
	if report.Claimed != 1 || report.Sent != 1 {
		t.Fatalf("report = %+v, want one sent", report)
	}
	e := f.env.entry(t, id)
	if e.Status != notification.StatusSent || !e.SentAt.Valid || !e.SentAt.Time.Equal(testNow) {
		t.Fatalf("entry after send = %+v", e)
	}
	if e.ClaimToken != "" {
		t.Fatalf("lease not released: %q", e.ClaimToken)
	}

	ctx := context.Background()
	c, err := f.env.cohorts.GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("cohort not assigned: %v", err)
	}
	ev, err := f.env.events.GetByNotificationID(ctx, id)
	if err != nil {
		t.Fatalf("engagement event not recorded: %v", err)
	}
	if ev.SendHour != 12 || ev.Demographics.AgeBracket != "25-34" || ev.CohortName.String != c.CohortName {
		t.Fatalf("event snapshot = %+v", ev)
	}
	if ev.PolicyVersion != engagement.CurrentPolicy {
		t.Fatalf("policy version = %s", ev.PolicyVersion)
	}

	if again := f.run(t); again.Claimed != 0 {
		t.Fatalf("sent entry was claimed again: %+v", again)
	}
}

func TestDispatchDefersQuietHoursWithoutRetry(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", `{"email": {"enabled": true, "quietHours": {"start": "22:00", "end": "08:00"}}}`)
	f.clock = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	id := f.enqueue(t, "u1", notification.ChannelEmail, f.clock)

	report := f.run(t)
	if report.Deferred != 1 || report.Sent != 0 {
		t.Fatalf("report = %+v, want one deferred", report)
	}
	e := f.env.entry(t, id)
	want := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	if e.Status != notification.StatusPending || e.RetryCount != 0 || !e.ScheduledFor.Equal(want) {
		t.Fatalf("entry = status %s retries %d scheduled %v, want pending 0 %v", e.Status, e.RetryCount, e.ScheduledFor, want)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("sender was called during quiet hours")
	}
}

func TestDispatchRetriesThenFails(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", emailOn)
	f.sender.failures = 10
	id := f.enqueue(t, "u1", notification.ChannelEmail, testNow)

	for i, delay := range []time.Duration{15 * time.Minute, 45 * time.Minute, 135 * time.Minute} {
		report := f.run(t)
		if report.Retried != 1 {
			t.Fatalf("attempt %d: report = %+v, want one retried", i+1, report)
		}
		e := f.env.entry(t, id)
		if e.RetryCount != i+1 || !e.ScheduledFor.Equal(f.clock.Add(delay)) {
			t.Fatalf("attempt %d: retries %d scheduled %v, want %d at +%s", i+1, e.RetryCount, e.ScheduledFor, i+1, delay)
		}
		if e.FailureReason.String != "provider unavailable" {
			t.Fatalf("failure reason = %q", e.FailureReason.String)
		}
		if early := f.run(t); early.Claimed != 0 {
			t.Fatalf("entry claimed before its retry was due")
		}
		f.clock = e.ScheduledFor
	}

	report := f.run(t)
	if report.Failed != 1 {
		t.Fatalf("final report = %+v, want one failed", report)
	}
	e := f.env.entry(t, id)
	if e.Status != notification.StatusFailed || e.RetryCount != notification.MaxRetryCount || !e.FailedAt.Valid {
		t.Fatalf("final entry = %+v", e)
	}
}

func TestDispatchDisabledChannel(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", `{"email": {"enabled": false}}`)
	fresh := f.enqueue(t, "u1", notification.ChannelEmail, testNow.Add(-time.Hour))
	stale := f.enqueue(t, "u1", notification.ChannelEmail, testNow.Add(-8*24*time.Hour))

	report := f.run(t)
	if report.Deferred != 1 || report.Cancelled != 1 {
		t.Fatalf("report = %+v, want one deferred and one cancelled", report)
	}
	e := f.env.entry(t, fresh)
	if e.Status != notification.StatusPending || e.RetryCount != 0 || !e.ScheduledFor.Equal(testNow.Add(24*time.Hour)) {
		t.Fatalf("fresh entry = %+v", e)
	}
	if got := f.env.entry(t, stale).Status; got != notification.StatusCancelled {
		t.Fatalf("stale entry status = %s, want cancelled", got)
	}
}

func TestDispatchMissingProfileIsDeferred(t *testing.T) {
	f := newDispatchFixture(t)
	id := f.enqueue(t, "ghost", notification.ChannelEmail, testNow)

	report := f.run(t)
	if report.Deferred != 1 || report.StoreErrors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if got := f.env.entry(t, id).Status; got != notification.StatusPending {
		t.Fatalf("status = %s, want pending", got)
	}
}

func TestDispatchSendTimeoutCountsAsFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", emailOn)
	f.svc.cfg.SendTimeout = 20 * time.Millisecond
	f.sender.block = true
	id := f.enqueue(t, "u1", notification.ChannelEmail, testNow)

	report := f.run(t)
	if report.Retried != 1 {
		t.Fatalf("report = %+v, want one retried", report)
	}
	e := f.env.entry(t, id)
	if !strings.HasPrefix(e.FailureReason.String, "send timed out") || e.RetryCount != 1 {
		t.Fatalf("entry = retries %d reason %q", e.RetryCount, e.FailureReason.String)
	}
}

func TestDispatchWithoutSenderRetries(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", `{"sms": {"enabled": true}}`)
	id := f.enqueue(t, "u1", notification.ChannelSMS, testNow)

	report := f.run(t)
	if report.Retried != 1 {
		t.Fatalf("report = %+v, want one retried", report)
	}
	if e := f.env.entry(t, id); !strings.Contains(e.FailureReason.String, "no sender") {
		t.Fatalf("failure reason = %q", e.FailureReason.String)
	}
	if _, err := f.env.cohorts.GetByUserID(context.Background(), "u1"); err == nil {
		t.Fatalf("cohort assigned without an eligible send")
	}
}

func TestDispatchRespectsBatchSizeAndPriority(t *testing.T) {
	f := newDispatchFixture(t)
	f.env.addProfile(t, "u1", emailOn)
	f.svc.cfg.BatchSize = 2
	ctx := context.Background()
	var ids []int64
	for _, prio := range []int{9, 1, 5} {
		e := &notification.QueueEntry{UserID: "u1", Channel: notification.ChannelEmail, Body: "x", Priority: prio}
		if err := e.Normalize(testNow); err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		id, err := f.env.queue.Enqueue(ctx, e)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	if report := f.run(t); report.Sent != 2 {
		t.Fatalf("report = %+v, want two sent", report)
	}
	if got := f.env.entry(t, ids[0]).Status; got != notification.StatusPending {
		t.Fatalf("lowest priority entry status = %s, want pending", got)
	}
	if len(f.sender.sent) != 2 || f.sender.sent[0] != ids[1] || f.sender.sent[1] != ids[2] {
		t.Fatalf("send order = %v, want [%d %d]", f.sender.sent, ids[1], ids[2])
	}
}

type failingClaimRepo struct{ notification.Repository }

func (failingClaimRepo) ClaimDue(context.Context, int, time.Time, string, time.Duration) ([]*notification.QueueEntry, error) {
	return nil, errors.New("database is locked")
}

func TestDispatchClaimFailureIsReturned(t *testing.T) {
	f := newDispatchFixture(t)
	f.svc.queue = failingClaimRepo{f.env.queue}
	if _, err := f.svc.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected claim error")
	}
}

// slowSender counts every call per entry and takes delay to deliver.
type slowSender struct {
	delay time.Duration
	mu    sync.Mutex
	calls map[int64]int
}

func (s *slowSender) Channel() notification.Channel { return notification.ChannelEmail }

func (s *slowSender) Send(ctx context.Context, e *notification.QueueEntry, _ notification.Recipient) error {
	s.mu.Lock()
	s.calls[e.ID]++
	s.mu.Unlock()
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slowSender) snapshot() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int, len(s.calls))
	for id, n := range s.calls {
		out[id] = n
	}
	return out
}

func TestOverlappingCyclesSendEachEntryOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "u1", `{"email": {"enabled": true, "frequency": "instant", "quietHours": {"start": "00:00", "end": "00:00"}}}`)
	sender := &slowSender{delay: 40 * time.Millisecond, calls: map[int64]int{}}

	cfg := DefaultDispatchConfig()
	cfg.ClaimLease = 300 * time.Millisecond
	cfg.SendTimeout = 60 * time.Millisecond
	newService := func() *DispatchService {
		return NewDispatchService(env.queue, env.profiles, senderMap{notification.ChannelEmail: sender},
			env.engagement, env.cohortSvc, cfg, nil, env.logger)
	}
	first, second := newService(), newService()

	const total = 12
	ctx := context.Background()
	now := time.Now()
	ids := make([]int64, 0, total)
	for i := 0; i < total; i++ {
		e := &notification.QueueEntry{
			UserID: "u1", Channel: notification.ChannelEmail, Body: "hello",
			ScheduledFor: now.Add(-time.Minute), CreatedAt: now.Add(-time.Minute),
		}
		if err := e.Normalize(now); err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		id, err := env.queue.Enqueue(ctx, e)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	var (
		wg          sync.WaitGroup
		firstReport notification.CycleReport
		firstErr    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstReport, firstErr = first.RunCycle(ctx)
	}()
	// The whole batch takes longer than the lease, so the second cycle
	// claims while the first would still be sending if it ignored the lease.
	time.Sleep(cfg.ClaimLease + 20*time.Millisecond)
	if _, err := second.RunCycle(ctx); err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first RunCycle: %v", firstErr)
	}
	if firstReport.LeftLeased == 0 {
		t.Fatalf("first cycle kept sending past its lease budget: %+v", firstReport)
	}

	for round := 0; round < 10 && len(sender.snapshot()) < total; round++ {
		time.Sleep(cfg.ClaimLease)
		if _, err := first.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle(round %d): %v", round, err)
		}
	}

	calls := sender.snapshot()
	for _, id := range ids {
		if calls[id] != 1 {
			t.Fatalf("entry %d reached the sender %d times, want once (all calls %v)", id, calls[id], calls)
		}
		if e := env.entry(t, id); e.Status != notification.StatusSent {
			t.Fatalf("entry %d status = %s, want sent", id, e.Status)
		}
	}
}

func TestShortLeaseShortensSendTimeout(t *testing.T) {
	env := newTestEnv(t)
	cfg := DefaultDispatchConfig()
	cfg.ClaimLease = 30 * time.Second
	cfg.SendTimeout = 30 * time.Second
	svc := NewDispatchService(env.queue, env.profiles, senderMap{}, env.engagement, env.cohortSvc, cfg, nil, env.logger)
	if svc.cfg.sendBudget() <= 0 {
		t.Fatalf("send timeout %s leaves no budget inside a %s lease", svc.cfg.SendTimeout, svc.cfg.ClaimLease)
	}
}
