// Package normalize maps source-native observation keys onto canonical
// fields and provides the text normalizers shared by identity resolution,
// fusion, scoring and enrichment.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/fusion-cli/internal/model"
)

// aliases maps lower-cased source keys to canonical fields. Canonical keys
// and export labels resolve too, through fieldKey.
var aliases = map[string]model.Field{
	"name":         model.FieldCompanyName,
	"nome":         model.FieldCompanyName,
	"razao_social": model.FieldCompanyName,
	"empresa":      model.FieldCompanyName,
	"company":      model.FieldCompanyName,

	"fantasia":      model.FieldTradeName,
	"nome_fantasia": model.FieldTradeName,
	"fantasy_name":  model.FieldTradeName,

	"cnpj_formatted": model.FieldCNPJ,

	"website": model.FieldDomain,
	"site":    model.FieldDomain,
	"url":     model.FieldDomain,
	"dominio": model.FieldDomain,

	"address":     model.FieldLocation,
	"endereco":    model.FieldLocation,
	"localizacao": model.FieldLocation,

	"porte":        model.FieldSize,
	"tamanho":      model.FieldSize,
	"company_size": model.FieldSize,

	"first_name":    model.FieldContactFirstName,
	"primeiro_nome": model.FieldContactFirstName,
	"last_name":     model.FieldContactLastName,
	"sobrenome":     model.FieldContactLastName,
	"title":         model.FieldContactTitle,
	"job_title":     model.FieldContactTitle,
	"cargo":         model.FieldContactTitle,

	"e-mail":        model.FieldEmail,
	"contact_email": model.FieldEmail,

	"telefone":  model.FieldPhone,
	"telephone": model.FieldPhone,
	"telefone2": model.FieldPhoneSecondary,
	"phone2":    model.FieldPhoneSecondary,

	"municipio": model.FieldCity,
	"cidade":    model.FieldCity,
	"uf":        model.FieldState,
	"estado":    model.FieldState,

	"linkedin_url": model.FieldLinkedIn,
	"lote":         model.FieldBatch,
}

var labelFields = func() map[string]model.Field {
	m := make(map[string]model.Field)
	for _, f := range model.Fields() {
		m[strings.ToLower(f.Label())] = f
	}
	return m
}()

// FieldFor resolves a source-native key to its canonical field.
func FieldFor(key string) (model.Field, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	if f, ok := model.ParseField(k); ok {
		return f, true
	}
	if f, ok := aliases[k]; ok {
		return f, true
	}
	f, ok := labelFields[k]
	return f, ok
}

// Canonical returns the observation's non-blank values keyed by canonical
// field. Unknown keys are dropped. Identity hints fill fields the source
// map leaves empty. When two source keys alias the same field, the
// lexicographically smaller source key wins so the result does not depend
// on map iteration order.
func Canonical(rec model.SourceRecord) map[model.Field]string {
	out := make(map[model.Field]string, len(rec.Fields)+3)
	winner := make(map[model.Field]string, len(rec.Fields))
	for k, v := range rec.Fields {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		f, ok := FieldFor(k)
		if !ok {
			continue
		}
		if prev, seen := winner[f]; seen && prev <= k {
			continue
		}
		winner[f] = k
		out[f] = v
	}
	hints := []struct {
		f model.Field
		v string
	}{
		{model.FieldCNPJ, rec.CNPJ},
		{model.FieldDomain, rec.Domain},
		{model.FieldCompanyName, rec.Name},
	}
	for _, h := range hints {
		if _, ok := out[h.f]; !ok && strings.TrimSpace(h.v) != "" {
			out[h.f] = strings.TrimSpace(h.v)
		}
	}
	return out
}

var nonDigit = regexp.MustCompile(`\D`)

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// Domain lower-cases a website value and trims scheme, "www.", path and
// trailing slash.
func Domain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}

var multiSpace = regexp.MustCompile(`\s+`)

// Name lower-cases a company name and collapses whitespace.
func Name(s string) string {
	return multiSpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// FoldAccents removes combining marks, turning "São Paulo" into "Sao Paulo".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Compact folds accents, lower-cases and strips every non-alphanumeric rune:
// "Padaria São João Ltda." becomes "padariasaojoaoltda".
func Compact(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(FoldAccents(s)), "")
}

// Slug folds accents, lower-cases and joins alphanumeric runs with "-":
// "Padaria São João" becomes "padaria-sao-joao".
func Slug(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(FoldAccents(s)), "-"), "-")
}

// EmailDomain returns the part after "@", lower-cased, or "".
func EmailDomain(email string) string {
	_, dom, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok {
		return ""
	}
	return strings.ToLower(dom)
}

// freeMailDomains are mailbox providers that never identify a company.
var freeMailDomains = []string{
	"gmail.com", "hotmail.com", "outlook.com", "yahoo.com",
	"example.com", "test.com", "mail.com", "email.com",
}

var roleMailPrefixes = []string{
	"info@", "contact@", "example@", "test@", "user@",
	"admin@", "webmaster@", "postmaster@", "hostmaster@",
}

// IsGenericEmail reports whether an address belongs to a free-mail provider
// or a role mailbox rather than a company contact.
func IsGenericEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	for _, d := range freeMailDomains {
		if strings.HasSuffix(e, d) {
			return true
		}
	}
	for _, p := range roleMailPrefixes {
		if strings.HasPrefix(e, p) {
			return true
		}
	}
	return false
}
