package steps

import (
	"strings"
)

// extractJSON pulls a JSON object out of an LLM response, tolerating markdown
// code fences and surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		response = response[idx+len("```json"):]
		if end := strings.Index(response, "```"); end != -1 {
			response = response[:end]
		}
		return strings.TrimSpace(response)
	}
	if idx := strings.Index(response, "```"); idx != -1 {
		response = response[idx+3:]
		if end := strings.Index(response, "```"); end != -1 {
			response = response[:end]
		}
		return strings.TrimSpace(response)
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		return response[start : end+1]
	}
	return response
}

// truncate cuts s at max runes for prompt assembly
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
