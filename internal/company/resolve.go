package company

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
)

// cnpjDigits is the length of a Brazilian company registry number.
const cnpjDigits = 14

// Resolve assigns the grouping identity of a raw observation. Schemes are
// tried in strict order and the first present value wins:
//  1. CNPJ, reduced to its 14 digits (any other length is ErrInvalidIdentity)
//  2. Domain or website, normalized
//  3. Company name, lower-cased
//  4. SHA-256 over the key-sorted JSON of the observation's fields
//
// Resolve is pure: equal observations always yield equal identities.
func Resolve(rec model.SourceRecord) (model.CompanyIdentity, error) {
	if raw := rec.Lookup("cnpj", "cnpj_formatted"); raw != "" {
		digits := normalize.Digits(raw)
		if len(digits) != cnpjDigits {
			return "", eris.Wrapf(model.ErrInvalidIdentity, "company: cnpj %q has %d digits", raw, len(digits))
		}
		return model.NewIdentity(model.IdentitySchemeCNPJ, digits), nil
	}
	return resolveWithoutCNPJ(rec)
}

func resolveWithoutCNPJ(rec model.SourceRecord) (model.CompanyIdentity, error) {
	if raw := rec.Lookup("domain", "website", "site", "url"); raw != "" {
		if d := normalize.Domain(raw); d != "" {
			return model.NewIdentity(model.IdentitySchemeDomain, d), nil
		}
	}
	if raw := rec.Lookup("name", "company_name", "razao_social", "nome"); raw != "" {
		return model.NewIdentity(model.IdentitySchemeName, normalize.Name(raw)), nil
	}
	sum, err := contentHash(rec.Fields)
	if err != nil {
		return "", err
	}
	return model.NewIdentity(model.IdentitySchemeHash, sum), nil
}

// contentHash digests fields through encoding/json, which writes map keys in
// sorted order.
func contentHash(fields map[string]string) (string, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", eris.Wrap(err, "company: marshal fields for hash")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Group is the set of observations sharing one identity.
type Group struct {
	Identity model.CompanyIdentity
	Records  []model.SourceRecord
}

// GroupRecords resolves every observation and buckets them by identity in
// first-seen order. An observation whose CNPJ is malformed is logged and
// regrouped by the next scheme instead of being dropped. Observations with
// no values at all are skipped.
func GroupRecords(records []model.SourceRecord) []Group {
	index := make(map[model.CompanyIdentity]int)
	var groups []Group

	for _, rec := range records {
		if rec.Empty() {
			continue
		}
		id, err := Resolve(rec)
		if err != nil {
			zap.L().Warn("company: identity fallback",
				zap.String("source", string(rec.Source)),
				zap.Error(err),
			)
			id, err = resolveWithoutCNPJ(rec)
			if err != nil {
				zap.L().Warn("company: unresolvable observation", zap.Error(err))
				continue
			}
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{Identity: id})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}
