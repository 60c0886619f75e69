package backup

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/glizzus/mustard/internal/util"
)

// Signature marks a document as a backup. It is stored under the empty key.
const Signature = "Mustard-Mine Backup"

const signatureKey = ""

// Keys that may never appear inside a record. They identify the owner a
// record belonged to when it was exported and must not leak into another.
var reservedKeys = map[string]bool{
	"":         true,
	"twitchid": true,
	"owner_id": true,
}

type document map[string]json.RawMessage

func parseDocument(doc []byte) (document, error) {
	var d document
	if err := json.Unmarshal(doc, &d); err != nil || d == nil {
		return nil, invalidf("backup is not a JSON object")
	}

	var sig string
	raw, ok := d[signatureKey]
	if !ok || json.Unmarshal(raw, &sig) != nil || sig != Signature {
		return nil, invalidf("backup signature is missing or wrong")
	}
	return d, nil
}

func isSentinel(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte(`""`))
}

// records returns the elements of a list section without the trailing
// empty-string sentinels.
func records(section string, raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, invalidf("%s must be a list", section)
	}
	return util.TrimTrailing(items, isSentinel), nil
}

type recordShape struct {
	allowed map[string]bool
	// dropped keys are accepted and ignored.
	dropped map[string]bool
}

type record map[string]json.RawMessage

func (s recordShape) decode(raw json.RawMessage) (record, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return nil, invalidf("not an object")
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		switch {
		case reservedKeys[k]:
			return nil, invalidf("reserved key %q", k)
		case s.dropped[k]:
			delete(rec, k)
		case !s.allowed[k]:
			return nil, invalidf("unknown key %q", k)
		}
	}
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// str returns the string under key, or nil if the key is absent or null.
func (r record) str(key string) (*string, error) {
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, invalidf("%s must be a string", key)
	}
	return &s, nil
}

// requiredStr is str for a key that must hold a non-blank string.
func (r record) requiredStr(key string) (string, error) {
	s, err := r.str(key)
	if err != nil {
		return "", err
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		return "", invalidf("%s is required", key)
	}
	return *s, nil
}

// integer returns the whole number under key, or nil if the key is absent
// or null.
func (r record) integer(key string) (*int, error) {
	raw, ok := r[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	n, ok := decodeInt(raw)
	if !ok {
		return nil, invalidf("%s must be a whole number", key)
	}
	return &n, nil
}

func decodeInt(raw json.RawMessage) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return int(n), true
}
