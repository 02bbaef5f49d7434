package logger

import (
	"testing"

	"sendtime_notifier/internal/infra/config"

	"github.com/sirupsen/logrus"
)

func TestInit(t *testing.T) {
	testCases := []struct {
		name      string
		cfg       config.AppConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{name: "development debug", cfg: config.AppConfig{LogLevel: "debug", Environment: "development"}, wantLevel: logrus.DebugLevel},
		{name: "production warn", cfg: config.AppConfig{LogLevel: "WARN", Environment: "production"}, wantLevel: logrus.WarnLevel, wantJSON: true},
		{name: "invalid level", cfg: config.AppConfig{LogLevel: "loud", Environment: "staging"}, wantLevel: logrus.InfoLevel, wantJSON: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			Init(&tc.cfg)
			if Log.GetLevel() != tc.wantLevel {
				t.Fatalf("level = %s, want %s", Log.GetLevel(), tc.wantLevel)
			}
			_, isJSON := Log.Formatter.(*logrus.JSONFormatter)
			if isJSON != tc.wantJSON {
				t.Fatalf("json formatter = %v, want %v", isJSON, tc.wantJSON)
			}
		})
	}

	if got := WithComponent("dispatcher").Data["component"]; got != "dispatcher" {
		t.Fatalf("component field = %v", got)
	}
}
