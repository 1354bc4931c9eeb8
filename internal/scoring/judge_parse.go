package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

// firstNumberRe matches the first numeric literal in a judge response,
// used as a last-resort fallback when structured output fails to parse.
var firstNumberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// ExtractJSON attempts to extract a JSON object from an LLM response
// that might contain additional text before or after it. It handles
// markdown code fences and text surrounding the object.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	// Prefer an explicit ```json fence.
	if strings.Contains(response, "```json") {
		start := strings.Index(response, "```json") + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	// Generic code fences, possibly with a language identifier line.
	if strings.Contains(response, "```") {
		start := strings.Index(response, "```") + 3
		if newlineIdx := strings.Index(response[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find the matching closing brace, handling nested objects and
	// string literals.
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(response); i++ {
		char := response[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	return ""
}

// FirstNumber extracts the first numeric value from a malformed judge
// response, clamped to [min, max]. Returns false when no number is
// present.
func FirstNumber(response string, min, max float64) (float64, bool) {
	match := firstNumberRe.FindString(response)
	if match == "" {
		return 0, false
	}

	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	if val < min {
		val = min
	}
	if val > max {
		val = max
	}
	return val, true
}
