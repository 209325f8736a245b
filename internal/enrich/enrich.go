package enrich

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
)

const linkedInCompanyURL = "https://www.linkedin.com/company/"

// Enricher fills empty fields from reference tables. Every value it writes
// is flagged synthetic on the record. It is safe for concurrent use; draws
// from the shared generator are serialized.
type Enricher struct {
	tables *Tables

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Enricher. A nil tables selects DefaultTables. The
// generator decides every random pick, so a seeded one gives reproducible
// output.
func New(tables *Tables, rng *rand.Rand) *Enricher {
	if tables == nil {
		tables = DefaultTables()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Enricher{tables: tables, rng: rng}
}

// Enrich returns a copy of rec with its empty fields filled. Existing values
// are never replaced. Fields are derived in dependency order so the fills
// agree with each other: state, city, location, domain, email, phones, then
// the independent picks. CNPJ and trade name are never invented.
func (e *Enricher) Enrich(rec model.UnifiedRecord) model.UnifiedRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := rec
	fill := func(f model.Field, v string) {
		if v == "" || out.Has(f) {
			return
		}
		out.Set(f, v)
		out.MarkSynthetic(f)
	}

	if !out.Has(model.FieldState) {
		fill(model.FieldState, e.pick(e.tables.States))
	}
	state := strings.ToUpper(out.Get(model.FieldState))

	if !out.Has(model.FieldCity) {
		cities := e.tables.Cities[state]
		if len(cities) == 0 {
			cities = e.tables.Cities[e.tables.DefaultState]
		}
		fill(model.FieldCity, e.pick(cities))
	}

	fill(model.FieldLocation, out.Get(model.FieldCity)+" - "+out.Get(model.FieldState))

	if !out.Has(model.FieldDomain) {
		fill(model.FieldDomain, e.deriveDomain(out))
	}
	if out.Has(model.FieldDomain) {
		fill(model.FieldEmail, e.tables.EmailLocal+"@"+normalize.Domain(out.Get(model.FieldDomain)))
	}

	fill(model.FieldPhone, e.phone(state))
	fill(model.FieldPhoneSecondary, e.phone(state))

	fill(model.FieldSize, e.pick(e.tables.Sizes))
	fill(model.FieldContactFirstName, e.pick(e.tables.FirstNames))
	fill(model.FieldContactLastName, e.pick(e.tables.LastNames))
	fill(model.FieldContactTitle, e.pick(e.tables.Titles))

	if slug := normalize.Slug(out.Get(model.FieldCompanyName)); slug != "" {
		fill(model.FieldLinkedIn, linkedInCompanyURL+slug)
	}
	fill(model.FieldBatch, e.tables.Batch)

	zap.L().Debug("enrich: filled record",
		zap.String("identity", string(out.Identity)),
		zap.Int("synthetic_fields", len(out.SyntheticFields())-len(rec.SyntheticFields())),
	)
	return out
}

// Synthesize builds n wholly synthetic records from the seed company list.
// Every populated field is flagged synthetic. Names repeat with a numeric
// suffix once the seed list is exhausted.
func (e *Enricher) Synthesize(n int) []model.UnifiedRecord {
	out := make([]model.UnifiedRecord, 0, max(n, 0))
	for i := 0; i < n; i++ {
		name := e.tables.Companies[i%len(e.tables.Companies)]
		if round := i / len(e.tables.Companies); round > 0 {
			name = fmt.Sprintf("%s %d", name, round+1)
		}

		rec := model.UnifiedRecord{Identity: model.NewIdentity(model.IdentitySchemeName, normalize.Name(name))}
		rec.Set(model.FieldCompanyName, name)
		rec.Set(model.FieldTradeName, name)

		e.mu.Lock()
		rec.Set(model.FieldCNPJ, e.cnpj())
		e.mu.Unlock()

		rec = e.Enrich(rec)
		for _, f := range model.Fields() {
			if rec.Has(f) {
				rec.MarkSynthetic(f)
			}
		}
		out = append(out, rec)
	}

	zap.L().Warn("enrich: generated synthetic records", zap.Int("count", n))
	return out
}

// deriveDomain compacts the accent-folded company name and appends the
// domain suffix. An e-mail already on the record is not consulted.
func (e *Enricher) deriveDomain(rec model.UnifiedRecord) string {
	if base := normalize.Compact(rec.Get(model.FieldCompanyName)); base != "" {
		return base + e.tables.DomainSuffix
	}
	return ""
}

// phone formats a mobile number "(DD) 9XXXX-XXXX" with an area code of state.
func (e *Enricher) phone(state string) string {
	codes := e.tables.AreaCodes[state]
	if len(codes) == 0 {
		codes = e.tables.AreaCodes[e.tables.DefaultState]
	}
	ddd := e.pick(codes)
	if ddd == "" {
		return ""
	}
	return fmt.Sprintf("(%s) 9%04d-%04d", ddd, e.rng.Intn(10000), e.rng.Intn(10000))
}

// cnpj draws twelve random digits and appends the two check digits.
func (e *Enricher) cnpj() string {
	digits := make([]int, 12, 14)
	for i := range 8 {
		digits[i] = e.rng.Intn(10)
	}
	// Branch 0001, the headquarters.
	digits[11] = 1
	digits = append(digits, cnpjCheckDigit(digits))
	digits = append(digits, cnpjCheckDigit(digits))

	var b strings.Builder
	for _, d := range digits {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

// cnpjCheckDigit computes the next mod-11 verification digit.
func cnpjCheckDigit(digits []int) int {
	weight := len(digits) - 7
	sum := 0
	for _, d := range digits {
		sum += d * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	if r := sum % 11; r >= 2 {
		return 11 - r
	}
	return 0
}

func (e *Enricher) pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[e.rng.Intn(len(list))]
}
