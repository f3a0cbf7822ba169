package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for tool parsing.
var (
	ErrUnknownTool          = errors.New("tools: unknown tool")
	ErrInvalidToolArguments = errors.New("tools: invalid tool arguments")
)

// InvalidArgumentsError names the tool and the required fields that were
// absent or could not be decoded.
type InvalidArgumentsError struct {
	Tool    string
	Missing []string
	Reason  string
}

func (e *InvalidArgumentsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tools: invalid arguments for %s", e.Tool)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

func (e *InvalidArgumentsError) Unwrap() error {
	return ErrInvalidToolArguments
}
