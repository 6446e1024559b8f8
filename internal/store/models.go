package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LastSavedField is the JSON field carrying Record.LastSaved on the wire.
const LastSavedField = "lastSaved"

// OwnerID identifies whose record is being synchronized. Use NormalizeOwnerID
// to build one from user input.
type OwnerID string

var ownerCaser = cases.Lower(language.Und)

// NormalizeOwnerID strips all whitespace and lower-cases the result.
func NormalizeOwnerID(raw string) (OwnerID, error) {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if stripped == "" {
		return "", ErrInvalidOwner
	}
	return OwnerID(ownerCaser.String(stripped)), nil
}

func (o OwnerID) String() string {
	return string(o)
}

// Record is the opaque progress record of one owner. Fields holds the
// application data; LastSaved is the producer-assigned save time in unix
// milliseconds and is embedded into the JSON object as "lastSaved".
type Record struct {
	Fields    map[string]any
	LastSaved int64
}

// Clone returns a copy whose top-level field map can be mutated independently.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{Fields: fields, LastSaved: r.LastSaved}
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[LastSavedField] = r.LastSaved
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}

	var lastSaved int64
	if raw, ok := fields[LastSavedField]; ok {
		delete(fields, LastSavedField)
		switch v := raw.(type) {
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				f, ferr := v.Float64()
				if ferr != nil {
					return fmt.Errorf("invalid %s %q: %w", LastSavedField, v, err)
				}
				n = int64(f)
			}
			lastSaved = n
		case nil:
		default:
			return fmt.Errorf("invalid %s of type %T", LastSavedField, raw)
		}
	}

	r.Fields = fields
	r.LastSaved = lastSaved
	return nil
}
