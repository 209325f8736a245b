// Package scorer rates fused company records by completeness, format
// validity and cross-field consistency.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/model"
)

// DefaultQualityConfig returns a config.QualityConfig with the standard
// weights. Weights sum to 1.
func DefaultQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		CompletenessWeight: 0.5,
		FormatWeight:       0.3,
		ConsistencyWeight:  0.2,
		MandatoryFields:    []string{model.FieldCompanyName.Key()},
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.QualityConfig) float64 {
	return c.CompletenessWeight + c.FormatWeight + c.ConsistencyWeight
}

// ValidateConfig checks that a QualityConfig is internally consistent.
func ValidateConfig(c config.QualityConfig) error {
	var errs []string

	// All weights must be non-negative.
	weights := map[string]float64{
		"completeness_weight": c.CompletenessWeight,
		"format_weight":       c.FormatWeight,
		"consistency_weight":  c.ConsistencyWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if WeightSum(c) <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	if len(c.MandatoryFields) == 0 {
		errs = append(errs, "at least one mandatory field is required")
	}
	for _, key := range c.MandatoryFields {
		if _, ok := model.ParseField(key); !ok {
			errs = append(errs, fmt.Sprintf("unknown mandatory field %q", key))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
