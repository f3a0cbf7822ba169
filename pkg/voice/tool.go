package voice

// FunctionDeclaration describes a tool the model may invoke.
type FunctionDeclaration struct {
	// Name is the unique identifier for the tool (e.g., "navigate_canvas").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`
}

// ToolCall is one function invocation emitted by the model.
// It is consumed exactly once by the dispatcher.
type ToolCall struct {
	// ID correlates the call with its ToolResult.
	ID string `json:"id"`

	// Name is the tool being invoked.
	Name string `json:"name"`

	// Args contains the raw arguments from the model.
	Args map[string]any `json:"args"`
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	// ID matches the ToolCall.ID this result corresponds to.
	ID string `json:"id"`

	// Name echoes the tool name.
	Name string `json:"name"`

	// Response is the payload returned to the model.
	Response map[string]any `json:"response"`
}
