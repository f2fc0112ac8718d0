package config

import (
	"testing"

	"notif/internal/domain"
)

func TestSenderConfigurationTokensToLoad(t *testing.T) {
	cfg := SenderConfiguration{BatchesToLoad: 3, BatchSize: 1000}
	if got, want := cfg.TokensToLoad(), 3000; got != want {
		t.Fatalf("TokensToLoad() = %d, want %d", got, want)
	}
}

func TestSenderConfigurationRegistryDefaults(t *testing.T) {
	reg := NewSenderConfigurationRegistry(nil)

	ios := reg.For(domain.PlatformIOS)
	if ios.BatchSize != 10000 {
		t.Fatalf("iOS BatchSize = %d, want 10000", ios.BatchSize)
	}

	android := reg.For(domain.PlatformAndroid)
	if android.BatchSize != 1000 {
		t.Fatalf("Android BatchSize = %d, want 1000", android.BatchSize)
	}
}

func TestSenderConfigurationRegistryOverrides(t *testing.T) {
	reg := NewSenderConfigurationRegistry(map[domain.Platform]SenderConfiguration{
		domain.PlatformAndroid: {BatchesToLoad: 9, BatchSize: 42},
	})

	android := reg.For(domain.PlatformAndroid)
	if android.BatchSize != 42 || android.BatchesToLoad != 9 {
		t.Fatalf("override not applied: %+v", android)
	}

	// Untouched platforms keep their defaults.
	ios := reg.For(domain.PlatformIOS)
	if ios.BatchSize != 10000 {
		t.Fatalf("iOS BatchSize = %d, want unaffected default 10000", ios.BatchSize)
	}
}

func TestSenderConfigurationRegistryUnknownPlatformFallsBackToAndroidShape(t *testing.T) {
	reg := NewSenderConfigurationRegistry(nil)
	cfg := reg.For(domain.Platform("unknown-platform"))
	if cfg.BatchSize != 1000 {
		t.Fatalf("unknown platform fallback BatchSize = %d, want 1000", cfg.BatchSize)
	}
}
