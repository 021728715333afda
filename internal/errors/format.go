package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var fe *Error
	if !errors.As(err, &fe) {
		fe = New(ErrCodeInternal, err.Error(), err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", fe.Message)
	if fe.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", fe.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", fe.Code)
	return sb.String()
}

// Payload is the wire representation of an error, used by the MCP tools
// and the CLI's --json output.
type Payload struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// ToPayload converts any error into a Payload.
func ToPayload(err error) Payload {
	var fe *Error
	if !errors.As(err, &fe) {
		fe = New(ErrCodeInternal, err.Error(), err)
	}
	p := Payload{
		Code:       fe.Code,
		Message:    fe.Message,
		Category:   string(fe.Category),
		Details:    fe.Details,
		Suggestion: fe.Suggestion,
		Retryable:  fe.Retryable,
	}
	if fe.Cause != nil && fe.Cause.Error() != fe.Message {
		p.Cause = fe.Cause.Error()
	}
	return p
}

// FormatJSON renders err as an indented JSON object.
func FormatJSON(err error) string {
	if err == nil {
		return "{}"
	}
	data, mErr := json.MarshalIndent(ToPayload(err), "", "  ")
	if mErr != nil {
		return fmt.Sprintf(`{"code":%q,"message":%q}`, ErrCodeInternal, err.Error())
	}
	return string(data)
}
