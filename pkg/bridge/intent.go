package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"command-console/pkg/render"
)

// Mode routes a command to a backend endpoint.
type Mode string

const (
	ModeQuery  Mode = "query"
	ModeAction Mode = "action"
)

// Endpoint returns /query for ModeQuery and /action for anything else.
func (m Mode) Endpoint() string {
	if m == ModeQuery {
		return "/query"
	}
	return "/action"
}

var (
	// ErrInvalidPayload wraps the parse error of a malformed payload.
	ErrInvalidPayload = errors.New("payload is not valid JSON")
	// ErrEmptyCommand is returned for empty or whitespace-only commands.
	ErrEmptyCommand = errors.New("command is empty")
)

// Intent is one user request, built fresh per trigger.
type Intent struct {
	Mode    Mode
	Command string
	// Payload is compact JSON, or nil for an explicit null.
	Payload json.RawMessage
}

// ParseIntent trims its inputs and validates them in the order the form
// does: payload first, then command.
func ParseIntent(mode, command, payloadText string) (Intent, error) {
	command = strings.TrimSpace(command)
	payloadText = strings.TrimSpace(payloadText)

	var payload json.RawMessage
	if payloadText != "" {
		compact, err := render.Compact([]byte(payloadText))
		if err != nil {
			return Intent{}, &PayloadError{Err: err}
		}
		payload = compact
	}

	if command == "" {
		return Intent{}, ErrEmptyCommand
	}

	return Intent{Mode: Mode(mode), Command: command, Payload: payload}, nil
}

// Body encodes the intent as the request body.
func (i Intent) Body() ([]byte, error) {
	return render.CommandBody(i.Command, i.Payload)
}

// PayloadError reports a payload that failed to parse.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidPayload, e.Err)
}

func (e *PayloadError) Unwrap() []error {
	return []error{ErrInvalidPayload, e.Err}
}
