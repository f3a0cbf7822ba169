package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

// Invocation is a validated, typed tool call.
type Invocation interface {
	ToolName() string
}

// Navigate focuses the board viewport on an object.
type Navigate struct {
	ObjectID string `mapstructure:"objectId" json:"objectId"`
}

// CreateTask creates a to-do on the board.
type CreateTask struct {
	Title   string   `mapstructure:"title" json:"title"`
	Content string   `mapstructure:"content" json:"content"`
	Items   []string `mapstructure:"items" json:"items"`
}

// LabRange holds normal and warning thresholds.
type LabRange struct {
	Min        float64 `mapstructure:"min" json:"min"`
	Max        float64 `mapstructure:"max" json:"max"`
	WarningMin float64 `mapstructure:"warningMin" json:"warningMin"`
	WarningMax float64 `mapstructure:"warningMax" json:"warningMax"`
}

// CreateLabResult creates a lab result card on the board.
type CreateLabResult struct {
	Parameter string   `mapstructure:"parameter" json:"parameter"`
	Value     string   `mapstructure:"value" json:"value"`
	Unit      string   `mapstructure:"unit" json:"unit"`
	Status    string   `mapstructure:"status" json:"status"`
	Range     LabRange `mapstructure:"range" json:"range"`
	Trend     string   `mapstructure:"trend" json:"trend"`
}

// QueryKnowledge queries the persisted document collection.
type QueryKnowledge struct {
	Query string `mapstructure:"query" json:"query"`
}

// ListCanvasObjects queries a live snapshot of the board.
type ListCanvasObjects struct {
	Query string `mapstructure:"query" json:"query"`
}

func (Navigate) ToolName() string          { return NavigateCanvas }
func (CreateTask) ToolName() string        { return GenerateTask }
func (CreateLabResult) ToolName() string   { return GenerateLabResult }
func (QueryKnowledge) ToolName() string    { return QueryKnowledgeBase }
func (ListCanvasObjects) ToolName() string { return GetCanvasObjects }

func newInvocation(name string) (any, bool) {
	switch name {
	case NavigateCanvas:
		return &Navigate{}, true
	case GenerateTask:
		return &CreateTask{}, true
	case GenerateLabResult:
		return &CreateLabResult{}, true
	case QueryKnowledgeBase:
		return &QueryKnowledge{}, true
	case GetCanvasObjects:
		return &ListCanvasObjects{}, true
	}
	return nil, false
}

// Parse validates call against its declared schema and decodes it into the
// matching variant. Numbers sent as strings (and the reverse) are accepted.
func Parse(call voice.ToolCall) (Invocation, error) {
	decl, ok := Declaration(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	if missing := missingFields(decl.Parameters, call.Args, ""); len(missing) > 0 {
		return nil, &InvalidArgumentsError{Tool: call.Name, Missing: missing}
	}

	target, _ := newInvocation(call.Name)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("tools: build decoder: %w", err)
	}
	if err := decoder.Decode(call.Args); err != nil {
		return nil, &InvalidArgumentsError{Tool: call.Name, Reason: err.Error()}
	}

	switch v := target.(type) {
	case *Navigate:
		return *v, nil
	case *CreateTask:
		return *v, nil
	case *CreateLabResult:
		return *v, nil
	case *QueryKnowledge:
		return *v, nil
	case *ListCanvasObjects:
		return *v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
}

// missingFields walks the schema's required lists, descending into nested
// objects, and returns dotted paths of absent or empty fields.
func missingFields(schema map[string]any, args map[string]any, prefix string) []string {
	required, _ := schema["required"].([]string)
	props, _ := schema["properties"].(map[string]any)

	var missing []string
	for _, field := range required {
		path := prefix + field
		v, ok := args[field]
		if !ok || isEmpty(v) {
			missing = append(missing, path)
			continue
		}
		sub, _ := props[field].(map[string]any)
		if sub == nil || sub["type"] != "object" {
			continue
		}
		nested, ok := v.(map[string]any)
		if !ok {
			missing = append(missing, path)
			continue
		}
		missing = append(missing, missingFields(sub, nested, path+".")...)
	}
	sort.Strings(missing)
	return missing
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
