package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/catalogxlate/internal/csvcodec"
)

// ErrorKind separates malformed input from well-formed but invalid input.
type ErrorKind string

const (
	KindParse      ErrorKind = "parse"
	KindValidation ErrorKind = "validation"
)

// FieldError reports a problem with one column of a record.
type FieldError struct {
	Kind   ErrorKind
	Column string
	Msg    string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Column, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Column, e.Msg)
}

func (e *FieldError) Unwrap() error { return e.Err }

// familyField is one column of a family.
type familyField struct {
	column   string // csv field name
	key      string // upstream data key
	override string // upstream enum used when removing the override
	get      func(Overrides) string
}

// family groups fields that are set and removed together.
type family struct {
	set, remove Kind
	fields      []familyField
}

var families = []family{
	{
		set: SetBasicInformation, remove: RemoveBasicInformation,
		fields: []familyField{
			{csvcodec.FieldName, "name", "NAME", func(o Overrides) string { return o.BasicInformation.Name }},
			{csvcodec.FieldDescription, "description", "DESCRIPTION", func(o Overrides) string { return o.BasicInformation.Description }},
		},
	},
	{
		set: SetSEOInformation, remove: RemoveSEOInformation,
		fields: []familyField{
			{csvcodec.FieldPageTitle, "pageTitle", "PAGE_TITLE", func(o Overrides) string { return o.SEOInformation.PageTitle }},
			{csvcodec.FieldMetaDescription, "metaDescription", "META_DESCRIPTION", func(o Overrides) string { return o.SEOInformation.MetaDescription }},
		},
	},
	{
		set: SetStorefrontDetails, remove: RemoveStorefrontDetails,
		fields: []familyField{
			{csvcodec.FieldWarranty, "warranty", "WARRANTY", func(o Overrides) string { return o.StorefrontDetails.Warranty }},
			{csvcodec.FieldAvailabilityDescription, "availabilityDescription", "AVAILABILITY_DESCRIPTION", func(o Overrides) string { return o.StorefrontDetails.AvailabilityDescription }},
			{csvcodec.FieldSearchKeywords, "searchKeywords", "SEARCH_KEYWORDS", func(o Overrides) string { return o.StorefrontDetails.SearchKeywords }},
		},
	},
	{
		set: SetPreOrderSettings, remove: RemovePreOrderSettings,
		fields: []familyField{
			{csvcodec.FieldPreOrderMessage, "message", "MESSAGE", func(o Overrides) string { return o.PreOrderSettings.Message }},
		},
	},
}

// modifierKinds maps a modifier type to the kind that writes it.
var modifierKinds = map[ModifierType]Kind{
	ModifierText:           SetTextModifiers,
	ModifierMultiLineText:  SetTextModifiers,
	ModifierNumbersOnly:    SetNumbersOnlyModifiers,
	ModifierCheckbox:       SetCheckboxModifiers,
	ModifierDate:           SetDateModifiers,
	ModifierFile:           SetFileModifiers,
	ModifierMultipleChoice: SetMultipleChoiceModifiers,
}

// ToRecord flattens a product's default and target content into a CSV record.
func ToRecord(entityID int64, p ProductLocales, defaultLocale, targetLocale string) csvcodec.Record {
	rec := csvcodec.NewRecord(entityID)

	for _, fam := range families {
		for _, f := range fam.fields {
			rec.Set(f.column, defaultLocale, f.get(p.Default))
			rec.Set(f.column, targetLocale, f.get(p.Target))
		}
	}

	for _, side := range []struct {
		locale string
		o      Overrides
	}{{defaultLocale, p.Default}, {targetLocale, p.Target}} {
		rec.Set(csvcodec.FieldOptions, side.locale, encodeEntries(optionEntries(side.o)))
		rec.Set(csvcodec.FieldModifiers, side.locale, encodeEntries(modifierEntries(side.o)))
		rec.Set(csvcodec.FieldCustomFields, side.locale, encodeEntries(customFieldEntries(side.o)))
	}

	return rec
}

func optionEntries(o Overrides) []Entry {
	nodes := o.Options.Nodes()
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Entry{ID: n.ID, Label: n.DisplayName})
	}
	return out
}

func modifierEntries(o Overrides) []Entry {
	nodes := o.Modifiers.Nodes()
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		value := n.DefaultValue
		if n.Type == ModifierCheckbox {
			value = n.CheckboxLabel
		}
		out = append(out, Entry{ID: n.ID, Label: n.DisplayName, Value: value, Type: n.Type})
	}
	return out
}

func customFieldEntries(o Overrides) []Entry {
	nodes := o.CustomFields.Nodes()
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Entry{ID: n.ID, Label: n.Name, Value: n.Value})
	}
	return out
}

func encodeEntries(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

// ProductUpdate is the set of writes derived from one record.
type ProductUpdate struct {
	EntityID   int64
	Operations []Operation
}

// Empty reports whether the update writes nothing.
func (u ProductUpdate) Empty() bool { return len(u.Operations) == 0 }

// FromRecord derives the writes for one CSV record.
//
// A family yields a set operation when any of its target-locale fields has a
// value, carrying only those fields. It yields a remove operation for fields
// that are empty in the target locale but have a default-locale value. A
// family empty in both locales yields nothing. The target-locale name is
// required whenever the product has a default-locale name.
func FromRecord(rec csvcodec.Record, channelID int64, defaultLocale, targetLocale string) (ProductUpdate, error) {
	upd := ProductUpdate{EntityID: rec.EntityID}

	if rec.Get(csvcodec.FieldName, defaultLocale) != "" && rec.Get(csvcodec.FieldName, targetLocale) == "" {
		col := csvcodec.Key(csvcodec.FieldName, targetLocale)
		return upd, &FieldError{Kind: KindValidation, Column: col, Msg: "required field " + col + " is empty"}
	}

	productID := ProductGID(rec.EntityID)
	lc := LocaleContext{ChannelID: ChannelGID(channelID), Locale: targetLocale}

	for _, fam := range families {
		data := make(map[string]string)
		var remove []string
		for _, f := range fam.fields {
			target := rec.Get(f.column, targetLocale)
			switch {
			case target != "":
				data[f.key] = target
			case rec.Get(f.column, defaultLocale) != "":
				remove = append(remove, f.override)
			}
		}
		if len(data) > 0 {
			upd.Operations = append(upd.Operations, Operation{Kind: fam.set, Input: FamilyInput{
				ProductID: productID, LocaleContext: lc, Data: data,
			}})
		}
		if len(remove) > 0 {
			upd.Operations = append(upd.Operations, Operation{Kind: fam.remove, Input: FamilyInput{
				ProductID: productID, LocaleContext: lc, OverridesToRemove: remove,
			}})
		}
	}

	ops, err := collectionOperations(rec, productID, lc, defaultLocale, targetLocale)
	if err != nil {
		return upd, err
	}
	upd.Operations = append(upd.Operations, ops...)

	return upd, nil
}

func collectionOperations(rec csvcodec.Record, productID string, lc LocaleContext, defaultLocale, targetLocale string) ([]Operation, error) {
	var ops []Operation

	// Options
	set, removed, err := mergeCell(rec, csvcodec.FieldOptions, defaultLocale, targetLocale)
	if err != nil {
		return nil, err
	}
	if items := itemInputs(set, func(e Entry) map[string]string {
		return nonEmpty("displayName", e.Label)
	}); len(items) > 0 {
		ops = append(ops, Operation{Kind: SetOptions, Input: CollectionInput{ProductID: productID, LocaleContext: lc, Items: items}})
	}
	if len(removed) > 0 {
		ops = append(ops, Operation{Kind: RemoveOptions, Input: CollectionInput{ProductID: productID, LocaleContext: lc, IDsToRemove: removed}})
	}

	// Modifiers, one write per modifier type.
	set, removed, err = mergeCell(rec, csvcodec.FieldModifiers, defaultLocale, targetLocale)
	if err != nil {
		return nil, err
	}
	byKind := make(map[Kind][]Entry)
	var kindOrder []Kind
	for _, e := range set {
		k, ok := modifierKinds[e.Type]
		if !ok {
			col := csvcodec.Key(csvcodec.FieldModifiers, targetLocale)
			if e.Type == "" {
				return nil, &FieldError{Kind: KindValidation, Column: col, Msg: "required field type is empty for modifier " + e.ID}
			}
			return nil, &FieldError{Kind: KindValidation, Column: col, Msg: fmt.Sprintf("unknown modifier type %q for modifier %s", e.Type, e.ID)}
		}
		if _, seen := byKind[k]; !seen {
			kindOrder = append(kindOrder, k)
		}
		byKind[k] = append(byKind[k], e)
	}
	for _, k := range kindOrder {
		items := itemInputs(byKind[k], modifierData)
		ops = append(ops, Operation{Kind: k, Input: CollectionInput{ProductID: productID, LocaleContext: lc, Items: items}})
	}
	if len(removed) > 0 {
		ops = append(ops, Operation{Kind: RemoveModifiers, Input: CollectionInput{ProductID: productID, LocaleContext: lc, IDsToRemove: removed}})
	}

	// Custom fields
	set, removed, err = mergeCell(rec, csvcodec.FieldCustomFields, defaultLocale, targetLocale)
	if err != nil {
		return nil, err
	}
	if items := itemInputs(set, func(e Entry) map[string]string {
		d := nonEmpty("name", e.Label)
		if e.Value != "" {
			d["value"] = e.Value
		}
		return d
	}); len(items) > 0 {
		ops = append(ops, Operation{Kind: SetCustomFields, Input: CollectionInput{ProductID: productID, LocaleContext: lc, Items: items}})
	}
	if len(removed) > 0 {
		ops = append(ops, Operation{Kind: RemoveCustomFields, Input: CollectionInput{ProductID: productID, LocaleContext: lc, IDsToRemove: removed}})
	}

	return ops, nil
}

func modifierData(e Entry) map[string]string {
	d := nonEmpty("displayName", e.Label)
	if e.Value == "" {
		return d
	}
	switch e.Type {
	case ModifierCheckbox:
		d["checkboxLabel"] = e.Value
	case ModifierText, ModifierMultiLineText, ModifierNumbersOnly:
		d["defaultValue"] = e.Value
	}
	return d
}

func nonEmpty(key, value string) map[string]string {
	d := make(map[string]string, 2)
	if value != "" {
		d[key] = value
	}
	return d
}

func itemInputs(entries []Entry, data func(Entry) map[string]string) []ItemInput {
	items := make([]ItemInput, 0, len(entries))
	for _, e := range entries {
		items = append(items, ItemInput{ID: e.ID, Data: data(e)})
	}
	return items
}

// mergeCell parses the default and target JSON cells of field and merges
// them by id. It returns the target entries to write, with a missing type
// taken from the default entry of the same id, and the ids of default
// entries that have content but no target entry with content.
func mergeCell(rec csvcodec.Record, field, defaultLocale, targetLocale string) ([]Entry, []string, error) {
	defaults, err := decodeEntries(rec, field, defaultLocale)
	if err != nil {
		return nil, nil, err
	}
	targets, err := decodeEntries(rec, field, targetLocale)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]Entry, len(defaults))
	for _, d := range defaults {
		byID[d.ID] = d
	}

	var set []Entry
	written := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.ID == "" {
			col := csvcodec.Key(field, targetLocale)
			return nil, nil, &FieldError{Kind: KindValidation, Column: col, Msg: "required field id is empty"}
		}
		if t.Label == "" && t.Value == "" {
			continue
		}
		if t.Type == "" {
			t.Type = byID[t.ID].Type
		}
		set = append(set, t)
		written[t.ID] = true
	}

	var removed []string
	for _, d := range defaults {
		if d.ID == "" || written[d.ID] || (d.Label == "" && d.Value == "") {
			continue
		}
		removed = append(removed, d.ID)
	}

	return set, removed, nil
}

func decodeEntries(rec csvcodec.Record, field, locale string) ([]Entry, error) {
	cell := rec.Get(field, locale)
	if cell == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(cell), &entries); err != nil {
		return nil, &FieldError{Kind: KindParse, Column: csvcodec.Key(field, locale), Msg: "invalid JSON", Err: err}
	}
	return entries, nil
}
