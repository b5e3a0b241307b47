package forms

import (
	"bytes"
	"encoding/json"

	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/fields"
)

// DecodePayload parses a raw form-response JSON document. Object key order
// is preserved (the standard map decoder would lose it), which is why this
// walks the token stream instead of unmarshaling into a map: downstream
// slot ordering is defined as index-encounter order within the document.
//
// The top level must be a JSON object; anything else is a ParseError.
// Individual values of any JSON shape are accepted as-is.
func DecodePayload(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.WrapParse("json", "form response", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.NewParseError("json", "form response", "payload is not an object", nil)
	}

	p := &Payload{Fields: NewFieldMap()}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.WrapParse("json", "form response", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.NewParseError("json", "form response", "non-string object key", nil)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, errors.WrapParse("json", "form response", err)
		}

		switch key {
		case keyApartmentID:
			p.ApartmentID = fields.Stringify(value)
		case keyUserName:
			p.UserName = fields.Stringify(value)
		case keyUserNotes:
			p.UserNotes = fields.Stringify(value)
		default:
			p.Fields.Set(key, value)
		}
	}

	// Consume the closing brace so truncated documents fail loudly.
	if _, err := dec.Token(); err != nil {
		return nil, errors.WrapParse("json", "form response", err)
	}

	return p, nil
}
