package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")    // -> release
	t.Setenv("LOG_LEVEL", "warning") // -> warn
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v1/")
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("RATE_RPS", "x") // parse error -> default
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging fields unexpected: level=%q pretty=%v base=%q", cfg.LogLevel, cfg.LogPretty, cfg.APIBasePath)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBPath != "db.sqlite" {
		t.Fatalf("storage fields unexpected: %q %q", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.RateRPS != 20.0 {
		t.Fatalf("RateRPS = %v; want default 20", cfg.RateRPS)
	}
	if want := []string{"https://a.com", "http://b"}; !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Fatalf("origins = %#v; want %#v", cfg.CORS.AllowedOrigins, want)
	}
	if cfg.Security.AdminJWTSecret != "s3cret" {
		t.Fatalf("admin secret not loaded")
	}
	if cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("sample ratio = %v", cfg.OTEL.SampleRatio)
	}
}

func TestLoad_EngineDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	e := cfg.Engine
	if e.Curve.BaseXP != 100 || e.Curve.Exponent != 1.5 {
		t.Fatalf("curve defaults: %+v", e.Curve)
	}
	if e.Caps.Total != 1000 || e.Caps.Messages != 500 {
		t.Fatalf("cap defaults: %+v", e.Caps)
	}
	if e.Cooldowns.Message != time.Minute || e.Guard.MinVoiceMembers != 2 {
		t.Fatalf("guard defaults: %+v %+v", e.Cooldowns, e.Guard)
	}
	if e.Multipliers.StreakMinDays != 7 || e.Rewards.MessageXP != 5 {
		t.Fatalf("multiplier/reward defaults: %+v %+v", e.Multipliers, e.Rewards)
	}
	if e.Location() != time.UTC {
		t.Fatalf("default location should be UTC")
	}
}

func TestLoad_EngineEnvOverrides(t *testing.T) {
	t.Setenv("XP_CAP_MESSAGES", "42")
	t.Setenv("XP_COOLDOWN_REACTION", "5s")
	t.Setenv("XP_MULT_WEEKEND", "2")
	t.Setenv("XP_TIMEZONE", "Europe/Athens")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.Caps.Messages != 42 || cfg.Engine.Cooldowns.Reaction != 5*time.Second || cfg.Engine.Multipliers.Weekend != 2 {
		t.Fatalf("env overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.Location().String() != "Europe/Athens" {
		t.Fatalf("location = %v", cfg.Engine.Location())
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad timeout", map[string]string{"READ_TIMEOUT": "-1s"}},
		{"bad driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}},
		{"bad burst", map[string]string{"RATE_BURST": "0"}},
		{"bad sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2"}},
		{"bad cap", map[string]string{"XP_CAP_TOTAL": "0"}},
		{"bad exponent", map[string]string{"XP_CURVE_EXPONENT": "-1"}},
		{"bad duplicate threshold", map[string]string{"XP_DUPLICATE_THRESHOLD": "1.5"}},
		{"bad message range", map[string]string{"XP_MESSAGE": "10", "XP_MESSAGE_MAX": "3"}},
		{"bad timezone", map[string]string{"XP_TIMEZONE": "Mars/Olympus"}},
		{"bad peak hour", map[string]string{"XP_PEAK_START_HOUR": "25"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadPolicy_OverlaysOnlyPresentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	body := "caps:\n  total: 1500\ncooldowns:\n  message: 45s\nmultipliers:\n  weekend: 2.0\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("POLICY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	e := cfg.Engine
	if e.Caps.Total != 1500 || e.Cooldowns.Message != 45*time.Second || e.Multipliers.Weekend != 2.0 {
		t.Fatalf("policy not applied: %+v", e)
	}
	if e.Caps.Messages != 500 || e.Cooldowns.Reaction != 30*time.Second {
		t.Fatalf("absent keys should keep defaults: %+v", e)
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	t.Setenv("POLICY_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing policy file")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"  ":       "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
		"/":        "/",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
