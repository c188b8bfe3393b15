// Package catalog models the locale override data of a catalog product and
// converts it to and from flat CSV records.
package catalog

import "strconv"

// BasicInformation is the name/description family.
type BasicInformation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SEOInformation is the search-engine family.
type SEOInformation struct {
	PageTitle       string `json:"pageTitle"`
	MetaDescription string `json:"metaDescription"`
}

// StorefrontDetails is the storefront copy family.
type StorefrontDetails struct {
	Warranty                string `json:"warranty"`
	AvailabilityDescription string `json:"availabilityDescription"`
	SearchKeywords          string `json:"searchKeywords"`
}

// PreOrderSettings is the pre-order family.
type PreOrderSettings struct {
	Message string `json:"message"`
}

// Edges is a GraphQL connection of N.
type Edges[N any] struct {
	Edges []struct {
		Node N `json:"node"`
	} `json:"edges"`
}

// Nodes returns the nodes of the connection in order.
func (e Edges[N]) Nodes() []N {
	out := make([]N, len(e.Edges))
	for i, edge := range e.Edges {
		out[i] = edge.Node
	}
	return out
}

// OptionNode is a variant option as returned upstream.
type OptionNode struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// ModifierNode is a product modifier as returned upstream.
type ModifierNode struct {
	ID            string       `json:"id"`
	DisplayName   string       `json:"displayName"`
	Type          ModifierType `json:"type"`
	DefaultValue  string       `json:"defaultValue"`
	CheckboxLabel string       `json:"checkboxLabel"`
}

// CustomFieldNode is a custom field as returned upstream.
type CustomFieldNode struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Overrides is everything translatable about a product in one locale.
type Overrides struct {
	BasicInformation  BasicInformation       `json:"basicInformation"`
	SEOInformation    SEOInformation         `json:"seoInformation"`
	StorefrontDetails StorefrontDetails      `json:"storefrontDetails"`
	PreOrderSettings  PreOrderSettings       `json:"preOrderSettings"`
	Options           Edges[OptionNode]      `json:"options"`
	Modifiers         Edges[ModifierNode]    `json:"modifiers"`
	CustomFields      Edges[CustomFieldNode] `json:"customFields"`
}

// ProductLocales pairs a product's default-locale content with its overrides
// for the locale being translated.
type ProductLocales struct {
	ID      string    `json:"id"`
	Default Overrides `json:"default"`
	Target  Overrides `json:"target"`
}

// ModifierType is the kind of a product modifier. Each kind is written
// through its own upstream mutation.
type ModifierType string

const (
	ModifierText           ModifierType = "TEXT"
	ModifierMultiLineText  ModifierType = "MULTI_LINE_TEXT"
	ModifierCheckbox       ModifierType = "CHECKBOX"
	ModifierNumbersOnly    ModifierType = "NUMBERS_ONLY_TEXT"
	ModifierDate           ModifierType = "DATE"
	ModifierFile           ModifierType = "FILE"
	ModifierMultipleChoice ModifierType = "MULTIPLE_CHOICE"
)

// Entry is the normalized form of an option, modifier or custom field used
// inside JSON cells.
type Entry struct {
	ID    string       `json:"id"`
	Label string       `json:"label"`
	Value string       `json:"value,omitempty"`
	Type  ModifierType `json:"type,omitempty"`
}

// ProductGID returns the global id of a product.
func ProductGID(id int64) string {
	return "bc/store/product/" + strconv.FormatInt(id, 10)
}

// ChannelGID returns the global id of a channel.
func ChannelGID(id int64) string {
	return "bc/store/channel/" + strconv.FormatInt(id, 10)
}
