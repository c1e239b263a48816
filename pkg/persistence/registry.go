package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProviderConfig contains provider-specific configuration
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// PluginConfig provides initialization parameters to persistence plugins
type PluginConfig struct {
	// Config contains plugin-specific configuration
	Config json.RawMessage

	// LogTTL is the retention window of a job buffer after its last write
	LogTTL time.Duration

	// Now is the clock used for expiry bookkeeping; defaults to time.Now
	Now func() time.Time
}

// PluginFactory creates persistence plugins from configuration
type PluginFactory func(config PluginConfig) (PluginPersistence, error)

var (
	registry = make(map[string]PluginFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a persistence plugin factory for a provider type
func RegisterProvider(providerType string, factory PluginFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// NewPersistence creates a persistence plugin from provider configuration
func NewPersistence(providerConfig ProviderConfig, pluginConfig PluginConfig) (PluginPersistence, error) {
	mu.RLock()
	factory, ok := registry[providerConfig.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown persistence provider type: %s", providerConfig.Type)
	}

	pluginConfig.Config = providerConfig.Config
	if pluginConfig.LogTTL <= 0 {
		pluginConfig.LogTTL = 600 * time.Second
	}
	if pluginConfig.Now == nil {
		pluginConfig.Now = time.Now
	}
	return factory(pluginConfig)
}

// ListProviders returns registered provider types in sorted order
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
