// Package config loads the default plugin-option blob (staleTime,
// debounce/throttle windows, queue concurrency) a host application wires
// into its controllers, from an optional YAML file plus built-in
// defaults.
//
// Grounded on the config-loading shape of pkg/config/config.go in the
// retrieved r3e-network-service_layer repo: a New() constructor seeding
// defaults, a Load(path) that overlays an optional YAML file on top of
// them, tolerating a missing file rather than failing.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// CacheDefaults configures the built-in cache plugin.
type CacheDefaults struct {
	StaleTimeMS int64 `yaml:"staleTime"`
}

// DebounceDefaults configures the built-in debounce plugin.
type DebounceDefaults struct {
	MS int64 `yaml:"ms"`
}

// ThrottleDefaults configures the built-in throttle plugin.
type ThrottleDefaults struct {
	MS int64 `yaml:"ms"`
}

// QueueDefaults configures a queue controller.
type QueueDefaults struct {
	Concurrency int  `yaml:"concurrency"`
	AutoStart   bool `yaml:"autoStart"`
}

// Defaults is the top-level, host-supplied defaults document.
type Defaults struct {
	Cache    CacheDefaults    `yaml:"cache"`
	Debounce DebounceDefaults `yaml:"debounce"`
	Throttle ThrottleDefaults `yaml:"throttle"`
	Queue    QueueDefaults    `yaml:"queue"`
}

// New returns Defaults populated with the runtime's built-in defaults
// (spec.md §4.7: staleTime default 0, queue concurrency default 3).
func New() *Defaults {
	return &Defaults{
		Cache: CacheDefaults{StaleTimeMS: 0},
		Queue: QueueDefaults{Concurrency: 3, AutoStart: true},
	}
}

// Load overlays path's YAML document onto the built-in defaults. A
// missing file is not an error; it simply leaves the defaults in place,
// matching r3e-network-service_layer's pkg/config.Load "optional file"
// behavior.
func Load(path string) (*Defaults, error) {
	d := New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// PluginOptions renders the parsed defaults into the pluginOptions blob
// that Controller.SetPluginOptions or RequestOptions.PluginOptions
// accepts (spec.md §4.2's pluginOptions field). The queue dispatcher
// takes no plugin options.
func (d *Defaults) PluginOptions() map[string]any {
	return map[string]any{
		"staleTime": d.Cache.StaleTimeMS,
		"debounce":  d.Debounce.MS,
		"throttle":  d.Throttle.MS,
	}
}
