package model

// Field identifies one canonical attribute of a company record. The
// declaration order is the export column order.
type Field int

const (
	FieldCompanyName Field = iota
	FieldLocation
	FieldCNPJ
	FieldTradeName
	FieldDomain
	FieldSize
	FieldContactFirstName
	FieldContactLastName
	FieldContactTitle
	FieldEmail
	FieldPhone
	FieldPhoneSecondary
	FieldCity
	FieldState
	FieldLinkedIn
	FieldBatch

	fieldCount
)

var fieldKeys = [fieldCount]string{
	FieldCompanyName:      "company_name",
	FieldLocation:         "location",
	FieldCNPJ:             "cnpj",
	FieldTradeName:        "trade_name",
	FieldDomain:           "domain",
	FieldSize:             "size",
	FieldContactFirstName: "contact_first_name",
	FieldContactLastName:  "contact_last_name",
	FieldContactTitle:     "contact_title",
	FieldEmail:            "email",
	FieldPhone:            "phone",
	FieldPhoneSecondary:   "phone_secondary",
	FieldCity:             "city",
	FieldState:            "state",
	FieldLinkedIn:         "linkedin",
	FieldBatch:            "batch",
}

// Spreadsheet headers kept from the sales team's original workbook layout.
var fieldLabels = [fieldCount]string{
	FieldCompanyName:      "Company Name (Revised)",
	FieldLocation:         "Location",
	FieldCNPJ:             "CNPJ",
	FieldTradeName:        "Fantasy name",
	FieldDomain:           "Domain",
	FieldSize:             "Size",
	FieldContactFirstName: "First name",
	FieldContactLastName:  "Second Name",
	FieldContactTitle:     "Office",
	FieldEmail:            "E-mail",
	FieldPhone:            "Telephone",
	FieldPhoneSecondary:   "Telephone 2",
	FieldCity:             "City",
	FieldState:            "State",
	FieldLinkedIn:         "Linkedin",
	FieldBatch:            "LOTE",
}

var fieldsByKey = func() map[string]Field {
	m := make(map[string]Field, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		m[fieldKeys[f]] = f
	}
	return m
}()

// Key returns the snake_case key used in JSON, YAML and config files.
func (f Field) Key() string {
	if !f.Valid() {
		return ""
	}
	return fieldKeys[f]
}

// Label returns the export column header.
func (f Field) Label() string {
	if !f.Valid() {
		return ""
	}
	return fieldLabels[f]
}

func (f Field) String() string { return f.Key() }

// Valid reports whether f is one of the canonical fields.
func (f Field) Valid() bool { return f >= 0 && f < fieldCount }

// ParseField resolves a canonical key such as "company_name".
func ParseField(key string) (Field, bool) {
	f, ok := fieldsByKey[key]
	return f, ok
}

// Fields returns every canonical field in export order.
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// FieldLabels returns the export headers in column order.
func FieldLabels() []string {
	out := make([]string, fieldCount)
	copy(out, fieldLabels[:])
	return out
}
