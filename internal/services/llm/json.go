package llm

import (
	"fmt"
	"strings"
)

// ExtractJSON locates the JSON object inside an LLM response, tolerating
// prelude text and markdown code fences around it.
func ExtractJSON(response string) (string, error) {
	text := strings.TrimSpace(response)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}
