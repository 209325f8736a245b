package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Mode is "run" or
// "serve"; serve additionally needs a listen port.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if c.Pipeline.MinQualityScore < 0 || c.Pipeline.MinQualityScore > 1 {
		errs = append(errs, "pipeline.min_quality_score must be between 0 and 1")
	}
	if c.Pipeline.StageTimeoutSecs <= 0 {
		errs = append(errs, "pipeline.stage_timeout_secs must be > 0")
	}
	if c.Pipeline.MaxConcurrentStages < 0 || c.Pipeline.MaxConcurrentStages > 32 {
		errs = append(errs, "pipeline.max_concurrent_stages must be between 0 and 32")
	}
	if c.Pipeline.AllowSynthetic && !c.Pipeline.UseFallback {
		errs = append(errs, "pipeline.allow_synthetic requires pipeline.use_fallback")
	}

	q := c.Quality
	if q.CompletenessWeight < 0 || q.FormatWeight < 0 || q.ConsistencyWeight < 0 {
		errs = append(errs, "quality weights must be >= 0")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
