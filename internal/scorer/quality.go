package scorer

import (
	"math"
	"strings"

	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
)

// neutral is the sub-score used when no check of a kind applies.
const neutral = 0.5

const (
	mandatoryShare = 0.8
	optionalShare  = 0.2
)

// Scorer computes QualityScores. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	cfg       config.QualityConfig
	mandatory []model.Field
	optional  []model.Field
}

// NewScorer validates cfg and builds a Scorer.
func NewScorer(cfg config.QualityConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	isMandatory := make(map[model.Field]bool, len(cfg.MandatoryFields))
	s := &Scorer{cfg: cfg}
	for _, key := range cfg.MandatoryFields {
		f, _ := model.ParseField(key)
		if !isMandatory[f] {
			isMandatory[f] = true
			s.mandatory = append(s.mandatory, f)
		}
	}
	for _, f := range model.Fields() {
		if !isMandatory[f] {
			s.optional = append(s.optional, f)
		}
	}
	return s, nil
}

// Mandatory returns the fields a record must carry to score above zero.
func (s *Scorer) Mandatory() []model.Field {
	return append([]model.Field(nil), s.mandatory...)
}

// HasMandatory reports whether every mandatory field of rec is filled.
func (s *Scorer) HasMandatory(rec model.UnifiedRecord) bool {
	for _, f := range s.mandatory {
		if !rec.Has(f) {
			return false
		}
	}
	return true
}

// Score rates rec. A record missing any mandatory field scores exactly 0
// with all sub-scores zero.
func (s *Scorer) Score(rec model.UnifiedRecord) model.QualityScore {
	if !s.HasMandatory(rec) {
		return model.QualityScore{}
	}

	c := s.completeness(rec)
	f := formatScore(rec)
	k := consistencyScore(rec)

	total := (s.cfg.CompletenessWeight*c + s.cfg.FormatWeight*f + s.cfg.ConsistencyWeight*k) / WeightSum(s.cfg)

	return model.QualityScore{
		Score:        clamp01(total),
		Completeness: c,
		Format:       f,
		Consistency:  k,
	}
}

// MissingFields lists the empty canonical fields of rec in export order.
func (s *Scorer) MissingFields(rec model.UnifiedRecord) []model.Field {
	var out []model.Field
	for _, f := range model.Fields() {
		if !rec.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Scorer) completeness(rec model.UnifiedRecord) float64 {
	mandatoryRatio := filledRatio(rec, s.mandatory)
	optionalRatio := filledRatio(rec, s.optional)
	return mandatoryShare*mandatoryRatio + optionalShare*optionalRatio
}

// filledRatio treats an empty field list as a denominator of 1.
func filledRatio(rec model.UnifiedRecord, fields []model.Field) float64 {
	filled := 0
	for _, f := range fields {
		if rec.Has(f) {
			filled++
		}
	}
	total := len(fields)
	if total == 0 {
		total = 1
	}
	return float64(filled) / float64(total)
}

// formatScore is the fraction of applicable format checks passed.
func formatScore(rec model.UnifiedRecord) float64 {
	var checks []bool

	if rec.Has(model.FieldEmail) {
		checks = append(checks, validEmail(rec.Get(model.FieldEmail)))
	}
	if rec.Has(model.FieldCNPJ) {
		checks = append(checks, len(normalize.Digits(rec.Get(model.FieldCNPJ))) == 14)
	}
	for _, f := range []model.Field{model.FieldPhone, model.FieldPhoneSecondary} {
		if rec.Has(f) {
			checks = append(checks, len(normalize.Digits(rec.Get(f))) >= 10)
		}
	}
	if rec.Has(model.FieldDomain) {
		checks = append(checks, strings.Contains(rec.Get(model.FieldDomain), "."))
	}

	return passRatio(checks)
}

// consistencyScore is the fraction of applicable cross-field checks passed.
func consistencyScore(rec model.UnifiedRecord) float64 {
	var checks []bool

	if rec.Has(model.FieldDomain) && rec.Has(model.FieldEmail) {
		domain := normalize.Domain(rec.Get(model.FieldDomain))
		checks = append(checks, domain != "" && strings.Contains(normalize.EmailDomain(rec.Get(model.FieldEmail)), domain))
	}
	if rec.Has(model.FieldCity) || rec.Has(model.FieldState) {
		checks = append(checks, rec.Has(model.FieldCity) && rec.Has(model.FieldState))
	}

	return passRatio(checks)
}

func validEmail(v string) bool {
	local, domain, ok := strings.Cut(strings.TrimSpace(v), "@")
	return ok && local != "" && strings.Contains(domain, ".")
}

func passRatio(checks []bool) float64 {
	if len(checks) == 0 {
		return neutral
	}
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
