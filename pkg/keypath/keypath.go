// Package keypath extracts request keys from JSON response items by dotted
// path, e.g. "username" or "account.id".
package keypath

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// String returns a key extractor reading the value at path as a string.
// Numbers and booleans are rendered in their JSON form; a missing path
// yields "".
func String(path string) func(item json.RawMessage) string {
	return func(item json.RawMessage) string {
		return gjson.GetBytes(item, path).String()
	}
}

// Lookup reports the string value at path and whether it exists.
func Lookup(item json.RawMessage, path string) (string, bool) {
	v := gjson.GetBytes(item, path)
	return v.String(), v.Exists()
}
