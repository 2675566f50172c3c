package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked individually; everything else sets
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is true when any orchestrator tunable changed
	// (timeouts, breaker thresholds, simulator seed).
	EngineChanged bool

	// CoachChanged is true when the coach provider entry changed.
	CoachChanged bool

	// RestartRequired is true when a change cannot be applied in place:
	// listen address, TLS material, store backend, or the analysis and
	// transcription provider entries.
	RestartRequired bool
}

// Empty reports whether the diff carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.EngineChanged && !d.CoachChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Engine != new.Engine {
		d.EngineChanged = true
	}

	if !entryEqual(old.Providers.Coach, new.Providers.Coach) {
		d.CoachChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.MetricsAddr != new.Server.MetricsAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Store != new.Store ||
		!entryEqual(old.Providers.Analysis, new.Providers.Analysis) ||
		!entryEqual(old.Providers.Transcriber, new.Providers.Transcriber) {
		d.RestartRequired = true
	}

	return d
}

// entryEqual compares provider entries including the free-form Options map.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
