// Package csvcodec reads and writes the locale-suffixed translation CSV.
//
// A file has one row per product. The first column is the product id; every
// other column is named "<field>_<locale>" and there are two per field: the
// store's default locale followed by the target locale being edited.
// Options, modifiers and custom fields are JSON arrays held in a single cell.
package csvcodec

import "strings"

// Wire field names, in header order.
const (
	FieldName                    = "name"
	FieldDescription             = "description"
	FieldPageTitle               = "pageTitle"
	FieldMetaDescription         = "metaDescription"
	FieldWarranty                = "warranty"
	FieldAvailabilityDescription = "availabilityDescription"
	FieldSearchKeywords          = "searchKeywords"
	FieldPreOrderMessage         = "preOrderMessage"
	FieldOptions                 = "options"
	FieldModifiers               = "modifiers"
	FieldCustomFields            = "customFields"
)

// IDHeader is the header written for the product id column. EntityIDHeader
// is accepted on read as well.
const (
	IDHeader       = "productId"
	EntityIDHeader = "entityId"
)

// Fields lists every translatable column in wire order: basic information,
// SEO, storefront details, pre-order, options, modifiers, custom fields.
var Fields = []string{
	FieldName,
	FieldDescription,
	FieldPageTitle,
	FieldMetaDescription,
	FieldWarranty,
	FieldAvailabilityDescription,
	FieldSearchKeywords,
	FieldPreOrderMessage,
	FieldOptions,
	FieldModifiers,
	FieldCustomFields,
}

// Key returns the column name for field in locale.
func Key(field, locale string) string {
	return field + "_" + locale
}

// Record is one CSV row.
type Record struct {
	EntityID int64
	// Line is the 1-based line the row started on. Zero for records that
	// were not parsed from a file.
	Line   int
	Values map[string]string
}

// NewRecord returns an empty record for id.
func NewRecord(id int64) Record {
	return Record{EntityID: id, Values: make(map[string]string)}
}

// Get returns the value of field in locale, or "" if absent.
func (r Record) Get(field, locale string) string {
	return r.Values[Key(field, locale)]
}

// Set stores value for field in locale.
func (r *Record) Set(field, locale, value string) {
	if r.Values == nil {
		r.Values = make(map[string]string)
	}
	r.Values[Key(field, locale)] = value
}

// Raw renders the record roughly as it appeared in the file, for error rows.
func (r Record) Raw(headers []string) string {
	cells := make([]string, 0, len(headers))
	for _, h := range headers {
		if h == IDHeader || h == EntityIDHeader {
			cells = append(cells, formatID(r.EntityID))
			continue
		}
		cells = append(cells, quote(r.Values[h]))
	}
	return strings.Join(cells, ",")
}
