// Package tools holds the agent's system prompt, the function declarations
// handed to the model, and the typed argument variants the dispatcher
// executes.
package tools

import (
	"github.com/teslashibe/go-medforce/pkg/voice"
)

// Tool names.
const (
	NavigateCanvas     = "navigate_canvas"
	GenerateTask       = "generate_task"
	GenerateLabResult  = "generate_lab_result"
	QueryKnowledgeBase = "query_knowledge_base"
	GetCanvasObjects   = "get_canvas_objects"
)

// Names lists every registered tool in declaration order.
var Names = []string{
	NavigateCanvas,
	GenerateTask,
	GenerateLabResult,
	QueryKnowledgeBase,
	GetCanvasObjects,
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func num(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Declarations returns the function declarations sent in the session setup.
// The same schemas drive argument validation in Parse.
func Declarations() []voice.FunctionDeclaration {
	labRange := object(map[string]any{
		"min":        num("Minimum normal value, generate it if not provided"),
		"max":        num("Maximum normal value, generate it if not provided"),
		"warningMin": num("Minimum warning threshold, generate it if not provided"),
		"warningMax": num("Maximum warning threshold, generate it if not provided"),
	}, "min", "max", "warningMin", "warningMax")
	labRange["description"] = "Normal and warning ranges for the parameter"

	return []voice.FunctionDeclaration{
		{
			Name:        NavigateCanvas,
			Description: "Navigate canvas to item. Use objectId from canvas item list",
			Parameters: object(map[string]any{
				"objectId": str("Object id to navigate"),
			}, "objectId"),
		},
		{
			Name:        GenerateTask,
			Description: "Generate a task with title, content, and step-by-step items",
			Parameters: object(map[string]any{
				"title":   str("Title of the task"),
				"content": str("Description of the task"),
				"items": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Step by step task items",
				},
			}, "title", "content", "items"),
		},
		{
			Name:        GenerateLabResult,
			Description: "Generate a lab result with value, unit, status, range, and trend information. If the data is not available, generate it.",
			Parameters: object(map[string]any{
				"parameter": str("Name of the medical parameter (e.g., Aspartate Aminotransferase). If not provided use the most relevant parameter"),
				"value":     str("The measured value of the parameter, generate it if not provided"),
				"unit":      str("Unit of measurement (e.g., U/L, mg/dL), generate it if not provided"),
				"status":    str("Status of the parameter (optimal, warning, critical), generate it if not provided"),
				"range":     labRange,
				"trend":     str("Trend direction (stable, increasing, decreasing, fluctuating), generate it if not provided"),
			}, "parameter", "value", "unit", "status", "range", "trend"),
		},
		{
			Name:        QueryKnowledgeBase,
			Description: "Query the medical database to answer questions about patient medical data, lab results, diagnosis, and treatment history",
			Parameters: object(map[string]any{
				"query": str("The medical question about the patient's condition, lab results, diagnosis, or treatment"),
			}, "query"),
		},
		{
			Name:        GetCanvasObjects,
			Description: "Get canvas items details for navigation and canvas operations",
			Parameters: object(map[string]any{
				"query": str("Query to find specific canvas objects or items"),
			}, "query"),
		},
	}
}

// Declaration returns the declaration for name.
func Declaration(name string) (voice.FunctionDeclaration, bool) {
	for _, d := range Declarations() {
		if d.Name == name {
			return d, true
		}
	}
	return voice.FunctionDeclaration{}, false
}
