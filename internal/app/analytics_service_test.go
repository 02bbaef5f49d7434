package app

import (
	"context"
	"errors"
	"testing"

	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/cohort"
)

func TestAnalyticsReportIsCachedAndInvalidated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := seedEvents(t, env)
	if _, err := env.cohorts.CreateIfAbsent(ctx, cohort.NewCohort("u1", testNow)); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	cache := newMemCache()
	if _, err := newAggregationService(env, cache).Run(ctx, w.day); err != nil {
		t.Fatalf("Run: %v", err)
	}
	svc := NewAnalyticsService(env.analytics, env.cohorts, cache, 0, env.logger)

	rep, err := svc.Report(ctx, w.day)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(rep.Hourly) != 3 || len(rep.Demographics) != 2 || len(rep.Cohorts) != 1 {
		t.Fatalf("report sizes = %d hourly, %d segments, %d cohorts", len(rep.Hourly), len(rep.Demographics), len(rep.Cohorts))
	}
	if rep.Recommendation.Kind != analytics.RecommendEnable || rep.OptimizationEnabled {
		t.Fatalf("recommendation %s, enabled %v", rep.Recommendation.Kind, rep.OptimizationEnabled)
	}
	if rep.Cohorts[0].Users != 1 || rep.Cohorts[0].EmailsSent != w.cohortSent {
		t.Fatalf("cohort summary = %+v", rep.Cohorts[0])
	}

	cached, err := svc.Report(ctx, w.day)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if cache.hits != 1 || !cached.GeneratedAt.Equal(rep.GeneratedAt) {
		t.Fatalf("second report not served from cache (hits %d)", cache.hits)
	}

	if err := svc.SetOptimization(ctx, w.day, true); err != nil {
		t.Fatalf("SetOptimization: %v", err)
	}
	fresh, err := svc.Report(ctx, w.day)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !fresh.OptimizationEnabled {
		t.Fatalf("report still shows optimization disabled after toggle")
	}
}

func TestSetOptimizationWithoutAnalytics(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAnalyticsService(env.analytics, env.cohorts, nil, 0, env.logger)
	if err := svc.SetOptimization(context.Background(), testNow, true); !errors.Is(err, analytics.ErrNoAnalytics) {
		t.Fatalf("err = %v, want ErrNoAnalytics", err)
	}
}

func TestOperatorServiceRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile(t, "u1", emailOn)
	ns := newNotificationService(env)
	as := NewAnalyticsService(env.analytics, env.cohorts, nil, 0, env.logger)
	op := NewOperatorService(ns, as, 42)
	ctx := context.Background()

	if _, err := op.Report(ctx, 7, testNow); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("Report err = %v, want ErrAdminNotAuthorized", err)
	}
	if _, err := op.Stats(ctx, 7, "u1", 0); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("Stats err = %v", err)
	}
	if err := op.SetOptimization(ctx, 7, testNow, true); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("SetOptimization err = %v", err)
	}

	res, err := ns.QueueNotification(ctx, QueueRequest{UserID: "u1", Channel: "email", Body: "x"})
	if err != nil {
		t.Fatalf("QueueNotification: %v", err)
	}
	if err := op.Cancel(ctx, 7, res.EntryID); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("Cancel err = %v", err)
	}
	if err := op.Cancel(ctx, 42, res.EntryID); err != nil {
		t.Fatalf("admin Cancel: %v", err)
	}
	st, err := op.Stats(ctx, 42, "u1", 0)
	if err != nil || st.Total != 1 {
		t.Fatalf("admin Stats = %+v, %v", st, err)
	}

	if NewOperatorService(ns, as, 0).IsAdmin(0) {
		t.Fatalf("zero admin id must not authorize anyone")
	}
}
