// Package render turns JSON bytes into display text and builds request
// bodies. Output matches what a browser produces with JSON.parse followed
// by JSON.stringify: compact request bodies, two-space indented responses,
// key order kept as received.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Width 0 disables pretty's single-line arrays so every container is expanded.
var indentOptions = &pretty.Options{Width: 0, Prefix: "", Indent: "  ", SortKeys: false}

// Indent validates body as a single JSON value and returns it
// pretty-printed with a two-space indent and no trailing newline.
func Indent(body []byte) (string, error) {
	if err := Validate(body); err != nil {
		return "", err
	}
	out := pretty.PrettyOptions(normalize(body), indentOptions)
	return string(bytes.TrimRight(out, "\n")), nil
}

// Validate reports whether data holds exactly one JSON value. The error
// message comes from encoding/json so it names the offending token.
func Validate(data []byte) error {
	var probe json.RawMessage
	return json.Unmarshal(data, &probe)
}

// Compact validates data and re-encodes it without insignificant
// whitespace, normalizing numbers and strings along the way.
func Compact(data []byte) ([]byte, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	return normalize(data), nil
}

// CommandBody builds {"command": command, "payload": payload}. A nil
// payload is encoded as an explicit null. payload must already be valid
// compact JSON.
func CommandBody(command string, payload []byte) ([]byte, error) {
	body, err := sjson.SetRawBytes([]byte(`{}`), "command", []byte(Quote(command)))
	if err != nil {
		return nil, fmt.Errorf("failed to set command: %w", err)
	}
	raw := payload
	if raw == nil {
		raw = []byte("null")
	}
	body, err = sjson.SetRawBytes(body, "payload", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to set payload: %w", err)
	}
	return body, nil
}
