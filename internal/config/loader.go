package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"analysis":    {"remote"},
	"transcriber": {"openai"},
	"coach":       {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("analysis", cfg.Providers.Analysis.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("coach", cfg.Providers.Coach.Name)

	if cfg.Providers.Analysis.Name != "" && cfg.Providers.Analysis.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.analysis.base_url is required for provider %q", cfg.Providers.Analysis.Name))
	}
	if cfg.Providers.Analysis.Name == "" {
		slog.Warn("no remote analysis provider configured; all analyses will use the simulator")
	}
	if cfg.Providers.Transcriber.Name != "" && cfg.Providers.Transcriber.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.transcriber.api_key is required for provider %q", cfg.Providers.Transcriber.Name))
	}
	if cfg.Providers.Coach.Name != "" && cfg.Providers.Coach.Model == "" {
		errs = append(errs, fmt.Errorf("providers.coach.model is required for provider %q", cfg.Providers.Coach.Name))
	}

	// Store
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}

	// Engine
	if cfg.Engine.ProbeTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.probe_timeout %v must not be negative", cfg.Engine.ProbeTimeout))
	}
	if cfg.Engine.AnalyzeTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.analyze_timeout %v must not be negative", cfg.Engine.AnalyzeTimeout))
	}
	if cfg.Engine.TranscribeTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.transcribe_timeout %v must not be negative", cfg.Engine.TranscribeTimeout))
	}
	if cfg.Engine.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("engine.breaker.max_failures %d must not be negative", cfg.Engine.Breaker.MaxFailures))
	}
	if cfg.Engine.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.breaker.reset_timeout %v must not be negative", cfg.Engine.Breaker.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
