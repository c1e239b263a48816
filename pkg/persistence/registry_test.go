package persistence

import (
	"testing"
	"time"
)

func TestRegisterProvider(t *testing.T) {
	mockFactory := func(config PluginConfig) (PluginPersistence, error) {
		return nil, nil
	}

	RegisterProvider("test", mockFactory)

	providers := ListProviders()
	found := false
	for _, p := range providers {
		if p == "test" {
			found = true
			break
		}
	}

	if !found {
		t.Errorf("Expected to find 'test' provider in list, got: %v", providers)
	}
}

func TestNewPersistenceUnknownProvider(t *testing.T) {
	cfg := ProviderConfig{
		Type:   "unknown_provider",
		Config: []byte("{}"),
	}

	_, err := NewPersistence(cfg, PluginConfig{})
	if err == nil {
		t.Error("Expected error for unknown provider, got nil")
	}
}

func TestNewPersistenceAppliesDefaults(t *testing.T) {
	var got PluginConfig
	RegisterProvider("capture", func(config PluginConfig) (PluginPersistence, error) {
		got = config
		return nil, nil
	})

	raw := []byte(`{"k":"v"}`)
	if _, err := NewPersistence(ProviderConfig{Type: "capture", Config: raw}, PluginConfig{}); err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	if got.LogTTL != 600*time.Second {
		t.Errorf("LogTTL = %v, want 600s", got.LogTTL)
	}
	if got.Now == nil {
		t.Error("Now must default to time.Now")
	}
	if string(got.Config) != string(raw) {
		t.Errorf("Config = %s, want %s", got.Config, raw)
	}
}
