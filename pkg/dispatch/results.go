package dispatch

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/tools"
)

// Narrative text returned to the model. None of it carries object ids.
const (
	NoMedicalData = "No relevant medical information found for this query."
	NoCanvasData  = "No relevant canvas objects found for this query."

	// StatusNavigationCompleted is the result status for navigate_canvas.
	StatusNavigationCompleted = "navigation completed"
	// StatusFailed is the result status for any call that did not complete.
	StatusFailed = "failed"

	analystName = "Data Analyst Agent"

	backgroundCompletedPrefix = "BACKGROUND ANALYSIS COMPLETED: "
	backgroundErrorPrefix     = "BACKGROUND PROCESSING ERROR: "
	failureNudgePrefix        = "TOOL CALL FAILED: "
)

func wrap(result map[string]any) map[string]any {
	return map[string]any{"result": result}
}

func navigateResult() map[string]any {
	return wrap(map[string]any{
		"status":      StatusNavigationCompleted,
		"action":      "Moved viewport to target object",
		"message":     "I've navigated to the requested canvas object. The viewport is now focused on it and the relevant information is displayed on the canvas.",
		"explanation": "Navigation completed successfully. The canvas view has been updated to show the requested object with all relevant details.",
	})
}

func labResult(inv tools.CreateLabResult) map[string]any {
	reading := strings.TrimSpace(inv.Value + " " + inv.Unit)
	return wrap(map[string]any{
		"status":       "Lab result generated",
		"action":       "Created lab result for medical parameter",
		"parameter":    inv.Parameter,
		"value":        inv.Value,
		"unit":         inv.Unit,
		"status_level": inv.Status,
		"trend":        inv.Trend,
		"range": map[string]any{
			"min":        inv.Range.Min,
			"max":        inv.Range.Max,
			"warningMin": inv.Range.WarningMin,
			"warningMax": inv.Range.WarningMax,
		},
		"message": fmt.Sprintf("I've generated a lab result for %s: %s (Status: %s). The result is now displayed on the canvas for your review.",
			inv.Parameter, reading, inv.Status),
		"explanation": fmt.Sprintf("Lab result created for %s with value %s. Status: %s. The result has been added to the canvas for analysis.",
			inv.Parameter, reading, inv.Status),
	})
}

func taskResult(inv tools.CreateTask) map[string]any {
	items := inv.Items
	if items == nil {
		items = []string{}
	}
	return wrap(map[string]any{
		"status":  "Task created successfully",
		"action":  "Created task with detailed analysis",
		"title":   inv.Title,
		"content": inv.Content,
		"items":   items,
		"message": fmt.Sprintf("I've created your confirmed task: '%s'. %s. The task includes %d step-by-step items. This task will be analysed by the %s in the background and you'll receive the results shortly.",
			inv.Title, strings.TrimRight(inv.Content, ". "), len(items), analystName),
		"explanation": fmt.Sprintf("Task '%s' created with %d step-by-step items. Background execution initiated.",
			inv.Title, len(items)),
		"executed_by":    analystName,
		"execution_mode": "background",
	})
}

func knowledgeResult(query, data string) map[string]any {
	if data == "" {
		data = NoMedicalData
	}
	return wrap(map[string]any{
		"status":       "Medical query processed",
		"action":       "Retrieved medical information",
		"query":        query,
		"medical_data": data,
		"message":      fmt.Sprintf("I've retrieved medical information for your query: '%s'. The findings are in medical_data.", query),
		"explanation":  fmt.Sprintf("Medical query '%s' processed. Retrieved relevant patient medical data, lab results, and clinical information.", query),
	})
}

func canvasResult(query, data string) map[string]any {
	if data == "" {
		data = NoCanvasData
	}
	return wrap(map[string]any{
		"status":      "Canvas objects retrieved",
		"action":      "Retrieved canvas items",
		"query":       query,
		"canvas_data": data,
		"message":     fmt.Sprintf("I've retrieved canvas objects for your query: '%s'. The matching objects are in canvas_data.", query),
		"explanation": fmt.Sprintf("Canvas query '%s' processed. Retrieved relevant canvas items for navigation.", query),
	})
}

// errorResult is the error-shaped payload. The raw error goes in a
// separate field; the narrative stays a generic apology.
func errorResult(tool string, err error) map[string]any {
	return map[string]any{
		"error": err.Error(),
		"result": map[string]any{
			"status":      StatusFailed,
			"action":      fmt.Sprintf("Could not complete %s", tool),
			"message":     "I'm sorry, I wasn't able to complete that action just now. Let's continue, and I can try again if you'd like.",
			"explanation": "The request could not be completed because a dependent service failed.",
		},
	}
}

func failureNudge(tool string) string {
	return failureNudgePrefix + fmt.Sprintf("The %s call could not be completed. Briefly apologise to the user and continue the conversation.", tool)
}

func backgroundCompleted(title string, answer board.AgentAnswer) string {
	text := fmt.Sprintf("The %s finished analysing task '%s' and posted the results to the canvas.", analystName, title)
	if summary := summarize(answer); summary != "" {
		text += " Summary: " + summary
	}
	return backgroundCompletedPrefix + text
}

func backgroundFailed(err error) string {
	return backgroundErrorPrefix + fmt.Sprintf("The %s encountered an error while processing your task: %v", analystName, err)
}

// maxSummary is in runes.
const maxSummary = 600

// summarize picks the first textual field of an agent answer.
func summarize(answer board.AgentAnswer) string {
	for _, key := range []string{"summary", "answer", "content", "text"} {
		if s, ok := answer[key].(string); ok && strings.TrimSpace(s) != "" {
			s = strings.TrimSpace(s)
			if r := []rune(s); len(r) > maxSummary {
				s = string(r[:maxSummary]) + "..."
			}
			return s
		}
	}
	return ""
}
