package company

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
)

// Fuser merges every observation of one company into a UnifiedRecord using
// a per-field source-priority table.
type Fuser struct {
	table *PriorityTable
}

// NewFuser creates a Fuser. A nil table selects DefaultPriorityTable.
func NewFuser(table *PriorityTable) *Fuser {
	if table == nil {
		table = DefaultPriorityTable()
	}
	return &Fuser{table: table}
}

// candidate is the working state of one field during a merge. It never
// leaves this file.
type candidate struct {
	value  string
	rank   int
	ranked bool
	set    bool
}

// beats reports whether c should replace cur. Listed sources beat unlisted
// ones, a better (lower) rank beats a worse one, and equal standing falls
// back to the lexically smaller value so the outcome is independent of
// observation order.
func (c candidate) beats(cur candidate) bool {
	switch {
	case !cur.set:
		return true
	case c.ranked != cur.ranked:
		return c.ranked
	case c.ranked && c.rank != cur.rank:
		return c.rank < cur.rank
	default:
		return c.value < cur.value
	}
}

// Fuse merges records into one record carrying identity. Fields no source
// supplied stay empty.
func (fz *Fuser) Fuse(identity model.CompanyIdentity, records []model.SourceRecord) model.UnifiedRecord {
	state := make(map[model.Field]candidate, len(model.Fields()))

	for _, rec := range records {
		for f, raw := range normalize.Canonical(rec) {
			v := canonicalValue(f, raw)
			if v == "" {
				continue
			}
			rank, ranked := fz.table.Rank(f, rec.Source)
			c := candidate{value: v, rank: rank, ranked: ranked, set: true}
			if c.beats(state[f]) {
				state[f] = c
			}
		}
	}

	out := model.UnifiedRecord{Identity: identity}
	for f, c := range state {
		out.Set(f, c.value)
	}

	zap.L().Debug("company: fused record",
		zap.String("identity", string(identity)),
		zap.Int("observations", len(records)),
	)
	return out
}

// FuseGroups fuses each group in order.
func (fz *Fuser) FuseGroups(groups []Group) []model.UnifiedRecord {
	out := make([]model.UnifiedRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, fz.Fuse(g.Identity, g.Records))
	}
	return out
}

// canonicalValue tidies a raw value for storage in a unified record.
func canonicalValue(f model.Field, raw string) string {
	v := strings.Join(strings.Fields(raw), " ")
	switch f {
	case model.FieldCNPJ:
		if d := normalize.Digits(v); len(d) == cnpjDigits {
			return d
		}
	case model.FieldDomain:
		return normalize.Domain(v)
	case model.FieldEmail:
		return strings.ToLower(v)
	case model.FieldState:
		return strings.ToUpper(v)
	}
	return v
}
