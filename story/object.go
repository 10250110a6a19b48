// Package story describes editable story state and exported project
// descriptor. Only fields the importer works with are typed, everything else
// is kept as raw JSON so nothing is lost between import and restore.
package story

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
)

// Object is a JSON object importer does not interpret.
type Object map[string]json.RawMessage

// String returns value of member key if it is a JSON string.
func (o Object) String(key string) string {
	s, _ := o.StringOK(key)
	return s
}

// StringOK is like String and also reports whether member is a JSON string.
func (o Object) StringOK(key string) (string, bool) {
	raw, ok := o[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false
	}
	return s, true
}

// Overlay returns copy of o with all members of top replacing its own.
func (o Object) Overlay(top Object) Object {
	out := make(Object, len(o)+len(top))
	maps.Copy(out, o)
	maps.Copy(out, top)
	return out
}

// Clone makes a shallow copy, raw values are never modified in place.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	return maps.Clone(o)
}

// splitKnown decodes known members of data into v and returns the rest. A
// known member of unexpected JSON type is not decoded and stays in the rest
// verbatim, so shapes written by other editor versions survive round trip.
func splitKnown(data []byte, v any, known ...string) (Object, error) {
	var all Object
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		raw, ok := all[k]
		if !ok {
			continue
		}
		member, err := json.Marshal(Object{k: raw})
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(member, v); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return nil, err
			}
			// drop whatever was decoded before the mismatch
			if err := json.Unmarshal([]byte(`{"`+k+`":null}`), v); err != nil {
				return nil, err
			}
			continue
		}
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// joinKnown encodes v adding extra members, typed fields win on conflict.
func joinKnown(v any, extra Object) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all Object
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}
