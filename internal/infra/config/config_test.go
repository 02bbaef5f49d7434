package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.SQLitePath != "./data/notifier.db" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected storage/http defaults: %+v", cfg)
	}
	if cfg.DispatchBatchSize != 100 || cfg.SendTimeout != 30*time.Second || cfg.ClaimLease != 10*time.Minute {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg)
	}
	if cfg.DisabledChannelMaxAge != 168*time.Hour || cfg.AnalysisWindowDays != 90 || cfg.MinHourSampleSize != 100 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CohortChannels, []string{"email"}) || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("unexpected list defaults: cohort %v brokers %v", cfg.CohortChannels, cfg.KafkaBrokers)
	}
}

func TestFromEnvParsesValues(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/notifier")
	t.Setenv("ADMIN_TELEGRAM_ID", "12345")
	t.Setenv("SEND_TIMEOUT", "5s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("COHORT_CHANNELS", "email,chat")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.AdminTelegramID != 12345 || cfg.SendTimeout != 5*time.Second || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if !reflect.DeepEqual(cfg.CohortChannels, []string{"email", "chat"}) {
		t.Fatalf("cohort channels = %v", cfg.CohortChannels)
	}
}

func TestFromEnvErrors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without url", env: map[string]string{"DATABASE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "mongo"}},
		{name: "bad batch size", env: map[string]string{"DATABASE_DRIVER": "sqlite", "DISPATCH_BATCH_SIZE": "many"}},
		{name: "negative window", env: map[string]string{"DATABASE_DRIVER": "sqlite", "ANALYSIS_WINDOW_DAYS": "-3"}},
		{name: "bad duration", env: map[string]string{"DATABASE_DRIVER": "sqlite", "CLAIM_LEASE": "ten minutes"}},
		{name: "bad admin id", env: map[string]string{"DATABASE_DRIVER": "sqlite", "ADMIN_TELEGRAM_ID": "admin"}},
		{name: "lease equal to send timeout", env: map[string]string{"DATABASE_DRIVER": "sqlite", "CLAIM_LEASE": "30s", "SEND_TIMEOUT": "30s"}},
		{name: "lease shorter than two send timeouts", env: map[string]string{"DATABASE_DRIVER": "sqlite", "CLAIM_LEASE": "50s", "SEND_TIMEOUT": "30s"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected configuration error")
			}
		})
	}
}
