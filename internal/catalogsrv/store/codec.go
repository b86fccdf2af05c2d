package store

import (
	jsoniter "github.com/json-iterator/go"
)

// json is the serializer for lineage and tag columns. Both backends store
// string slices as JSON text.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalStrings encodes a string slice for a lineage column. A nil slice
// encodes as an empty array so columns are never NULL.
func MarshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	out, err := json.MarshalToString(values)
	if err != nil {
		return "", err
	}
	return out, nil
}

// UnmarshalStrings decodes a lineage column into a string slice. Empty
// input decodes as an empty slice.
func UnmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.UnmarshalFromString(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
