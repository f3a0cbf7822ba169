package retrieval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flatten renders one JSON record as flat markdown: a single
// "# Object Record N" heading, then one "**key path:** value" line per leaf.
// Nested keys are joined with "_" and then spaced; a top-level "id" is
// written as "objectId" so the model can pass it straight to navigation.
// index is zero-based.
func Flatten(record map[string]any, index int) string {
	lines := []string{fmt.Sprintf("# Object Record %d", index+1)}
	flattenValue("", record, &lines)
	return strings.Join(lines, "\n")
}

func flattenValue(prefix string, value any, lines *[]string) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValue(joinKey(prefix, k), v[k], lines)
		}
	case []any:
		for i, item := range v {
			flattenValue(joinKey(prefix, strconv.Itoa(i)), item, lines)
		}
	default:
		key := strings.ReplaceAll(prefix, "_", " ")
		if key == "id" {
			key = "objectId"
		}
		*lines = append(*lines, fmt.Sprintf("**%s:** %s", key, formatLeaf(v)))
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

func formatLeaf(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
