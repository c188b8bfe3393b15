package catalog

import (
	"strconv"
	"strings"
)

// Kind identifies one upstream write. Every family has a set and a remove
// kind; modifiers have one set kind per modifier type.
type Kind int

const (
	SetBasicInformation Kind = iota
	RemoveBasicInformation
	SetSEOInformation
	RemoveSEOInformation
	SetStorefrontDetails
	RemoveStorefrontDetails
	SetPreOrderSettings
	RemovePreOrderSettings
	SetOptions
	RemoveOptions
	SetTextModifiers
	SetNumbersOnlyModifiers
	SetCheckboxModifiers
	SetDateModifiers
	SetFileModifiers
	SetMultipleChoiceModifiers
	RemoveModifiers
	SetCustomFields
	RemoveCustomFields
)

// kindSpec is the GraphQL shape of a Kind.
type kindSpec struct {
	name      string // alias and variable name
	field     string // mutation field under product
	inputType string
}

var kindSpecs = [...]kindSpec{
	SetBasicInformation:        {"setBasicInformation", "setProductBasicInformation", "SetProductBasicInformationInput!"},
	RemoveBasicInformation:     {"removeBasicInformation", "removeProductBasicInformationOverrides", "RemoveProductBasicInformationOverridesInput!"},
	SetSEOInformation:          {"setSeoInformation", "setProductSeoInformation", "SetProductSeoInformationInput!"},
	RemoveSEOInformation:       {"removeSeoInformation", "removeProductSeoInformationOverrides", "RemoveProductSeoInformationOverridesInput!"},
	SetStorefrontDetails:       {"setStorefrontDetails", "setProductStorefrontDetails", "SetProductStorefrontDetailsInput!"},
	RemoveStorefrontDetails:    {"removeStorefrontDetails", "removeProductStorefrontDetailsOverrides", "RemoveProductStorefrontDetailsOverridesInput!"},
	SetPreOrderSettings:        {"setPreOrderSettings", "setProductPreOrderSettings", "SetProductPreOrderSettingsInput!"},
	RemovePreOrderSettings:     {"removePreOrderSettings", "removeProductPreOrderSettingsOverrides", "RemoveProductPreOrderSettingsOverridesInput!"},
	SetOptions:                 {"setOptions", "setProductOptionsInformation", "SetProductOptionsInformationInput!"},
	RemoveOptions:              {"removeOptions", "removeProductOptionsOverrides", "RemoveProductOptionsOverridesInput!"},
	SetTextModifiers:           {"setTextModifiers", "setProductTextFieldModifierInformation", "SetProductTextFieldModifierInformationInput!"},
	SetNumbersOnlyModifiers:    {"setNumbersOnlyModifiers", "setProductNumbersOnlyFieldModifierInformation", "SetProductNumbersOnlyFieldModifierInformationInput!"},
	SetCheckboxModifiers:       {"setCheckboxModifiers", "setProductCheckboxModifierInformation", "SetProductCheckboxModifierInformationInput!"},
	SetDateModifiers:           {"setDateModifiers", "setProductDateFieldModifierInformation", "SetProductDateFieldModifierInformationInput!"},
	SetFileModifiers:           {"setFileModifiers", "setProductFileUploadModifierInformation", "SetProductFileUploadModifierInformationInput!"},
	SetMultipleChoiceModifiers: {"setMultipleChoiceModifiers", "setProductMultipleChoiceModifierInformation", "SetProductMultipleChoiceModifierInformationInput!"},
	RemoveModifiers:            {"removeModifiers", "removeProductModifiersOverrides", "RemoveProductModifiersOverridesInput!"},
	SetCustomFields:            {"setCustomFields", "setProductCustomFieldsInformation", "SetProductCustomFieldsInformationInput!"},
	RemoveCustomFields:         {"removeCustomFields", "removeProductCustomFieldsOverrides", "RemoveProductCustomFieldsOverridesInput!"},
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindSpecs) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindSpecs[k].name
}

// LocaleContext scopes a write to one channel and locale.
type LocaleContext struct {
	ChannelID string `json:"channelId"`
	Locale    string `json:"locale"`
}

// FamilyInput is the input of the set and remove kinds of a field family.
// Data holds only the fields being written; OverridesToRemove names the
// fields whose override is deleted.
type FamilyInput struct {
	ProductID         string            `json:"productId"`
	LocaleContext     LocaleContext     `json:"localeContext"`
	Data              map[string]string `json:"data,omitempty"`
	OverridesToRemove []string          `json:"overridesToRemove,omitempty"`
}

// ItemInput is one option, modifier or custom field write.
type ItemInput struct {
	ID   string            `json:"id"`
	Data map[string]string `json:"data"`
}

// CollectionInput is the input of the option, modifier and custom field kinds.
type CollectionInput struct {
	ProductID     string        `json:"productId"`
	LocaleContext LocaleContext `json:"localeContext"`
	Items         []ItemInput   `json:"items,omitempty"`
	IDsToRemove   []string      `json:"idsToRemove,omitempty"`
}

// Operation is one write of a product update: a kind and its input.
type Operation struct {
	Kind  Kind
	Input any
}

// BuildMutation assembles a single GraphQL document performing ops, in order,
// and the matching variables. It returns an empty document for no ops.
// A kind appearing more than once gets a numbered alias and variable.
func BuildMutation(ops []Operation) (string, map[string]any) {
	if len(ops) == 0 {
		return "", nil
	}

	vars := make(map[string]any, len(ops))
	decls := make([]string, 0, len(ops))
	var body strings.Builder

	seen := make(map[Kind]int, len(ops))
	for _, op := range ops {
		spec := kindSpecs[op.Kind]
		seen[op.Kind]++
		name := spec.name
		if n := seen[op.Kind]; n > 1 {
			name += strconv.Itoa(n)
		}

		vars[name] = op.Input
		decls = append(decls, "$"+name+": "+spec.inputType)
		body.WriteString("    " + name + ": " + spec.field + "(input: $" + name + ") {\n")
		body.WriteString("      product { id }\n")
		body.WriteString("    }\n")
	}

	var doc strings.Builder
	doc.WriteString("mutation UpdateProductLocale(" + strings.Join(decls, ", ") + ") {\n")
	doc.WriteString("  product {\n")
	doc.WriteString(body.String())
	doc.WriteString("  }\n")
	doc.WriteString("}")
	return doc.String(), vars
}
