package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
	}{
		{
			name:    "default config",
			envVars: map[string]string{},
			wantErr: false,
		},
		{
			name: "custom config",
			envVars: map[string]string{
				"SERVICE_NAME":    "test-service",
				"WORKER_THREADS":  "4",
				"BATCH_SIZE":      "500",
				"DEV_FEE_RATIO":   "0.05",
			},
			wantErr: false,
		},
		{
			name: "invalid worker threads",
			envVars: map[string]string{
				"WORKER_THREADS": "99",
			},
			wantErr: true,
		},
		{
			name: "invalid batch size",
			envVars: map[string]string{
				"BATCH_SIZE": "10",
			},
			wantErr: true,
		},
		{
			name: "invalid dev fee ratio",
			envVars: map[string]string{
				"DEV_FEE_RATIO": "1.5",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Set environment variables
			for key, value := range tt.envVars {
				if err := os.Setenv(key, value); err != nil {
					t.Fatalf("failed to set environment variable %s: %v", key, err)
				}
			}
			defer func() {
				// Clean up environment variables
				for key := range tt.envVars {
					if err := os.Unsetenv(key); err != nil {
						t.Logf("failed to unset environment variable %s: %v", key, err)
					}
				}
			}()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				// Verify some basic fields
				if cfg.ServiceName == "" {
					t.Error("ServiceName should not be empty")
				}
				if cfg.WorkerThreads <= 0 {
					t.Error("WorkerThreads should be positive")
				}
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := &Config{
		ServiceName:           "test",
		UpstreamBaseURL:       "http://localhost:8080",
		WorkerThreads:         11,
		BatchSize:             300,
		PollIntervalMS:        2000,
		MaxSubmissionFailures: 6,
		DevFeeEnabled:         true,
		DevFeeRatio:           0.05,
	}

	if err := cfg.validate(); err != nil {
		t.Errorf("validate() should not fail for valid config: %v", err)
	}

	base := func() Config { return *cfg }

	invalidConfigs := []*Config{
		func() *Config { c := base(); c.ServiceName = ""; return &c }(),
		func() *Config { c := base(); c.UpstreamBaseURL = ""; return &c }(),
		func() *Config { c := base(); c.WorkerThreads = 0; return &c }(),
		func() *Config { c := base(); c.WorkerThreads = 33; return &c }(),
		func() *Config { c := base(); c.BatchSize = 10; return &c }(),
		func() *Config { c := base(); c.BatchSize = 5000; return &c }(),
		func() *Config { c := base(); c.PollIntervalMS = 0; return &c }(),
		func() *Config { c := base(); c.MaxSubmissionFailures = 0; return &c }(),
		func() *Config { c := base(); c.DevFeeRatio = 1.5; return &c }(),
	}

	for i, cfg := range invalidConfigs {
		if err := cfg.validate(); err == nil {
			t.Errorf("validate() should fail for invalid config %d", i)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	// Test getEnv
	if err := os.Setenv("TEST_STRING", "test_value"); err != nil {
		t.Fatalf("failed to set TEST_STRING: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_STRING"); err != nil {
			t.Logf("failed to unset TEST_STRING: %v", err)
		}
	}()

	if got := getEnv("TEST_STRING", "default"); got != "test_value" {
		t.Errorf("getEnv() = %v, want %v", got, "test_value")
	}

	if got := getEnv("NONEXISTENT", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want %v", got, "default")
	}

	// Test getEnvInt
	if err := os.Setenv("TEST_INT", "42"); err != nil {
		t.Fatalf("failed to set TEST_INT: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_INT"); err != nil {
			t.Logf("failed to unset TEST_INT: %v", err)
		}
	}()

	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want %v", got, 42)
	}

	if got := getEnvInt("NONEXISTENT", 99); got != 99 {
		t.Errorf("getEnvInt() = %v, want %v", got, 99)
	}

	// Test getEnvFloat
	if err := os.Setenv("TEST_FLOAT", "3.14"); err != nil {
		t.Fatalf("failed to set TEST_FLOAT: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_FLOAT"); err != nil {
			t.Logf("failed to unset TEST_FLOAT: %v", err)
		}
	}()

	if got := getEnvFloat("TEST_FLOAT", 0.0); got != 3.14 {
		t.Errorf("getEnvFloat() = %v, want %v", got, 3.14)
	}

	// Test getEnvBool
	if err := os.Setenv("TEST_BOOL", "false"); err != nil {
		t.Fatalf("failed to set TEST_BOOL: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_BOOL"); err != nil {
			t.Logf("failed to unset TEST_BOOL: %v", err)
		}
	}()

	if got := getEnvBool("TEST_BOOL", true); got != false {
		t.Errorf("getEnvBool() = %v, want %v", got, false)
	}

	if got := getEnvBool("NONEXISTENT", true); got != true {
		t.Errorf("getEnvBool() = %v, want %v", got, true)
	}

	// Test getEnvDuration
	if err := os.Setenv("TEST_DURATION", "30s"); err != nil {
		t.Fatalf("failed to set TEST_DURATION: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_DURATION"); err != nil {
			t.Logf("failed to unset TEST_DURATION: %v", err)
		}
	}()

	if got := getEnvDuration("TEST_DURATION", 0); got != 30*time.Second {
		t.Errorf("getEnvDuration() = %v, want %v", got, 30*time.Second)
	}

	// Test getEnvSlice
	if err := os.Setenv("TEST_SLICE", "a, b ,c"); err != nil {
		t.Fatalf("failed to set TEST_SLICE: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_SLICE"); err != nil {
			t.Logf("failed to unset TEST_SLICE: %v", err)
		}
	}()

	got := getEnvSlice("TEST_SLICE", []string{"default"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("getEnvSlice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getEnvSlice()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
