// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply carries no recognizable JSON payload.
var ErrNoJSON = errors.New("no JSON payload in LLM response")

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// codeBlockRegex extracts any fenced content, with or without a language tag.
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")
)

// ExtractJSON locates the JSON payload of a reply: a fenced object or array,
// a bare document, or the outermost braces inside conversational text.
func ExtractJSON(response string) (json.RawMessage, error) {
	response = strings.TrimSpace(response)
	candidate := response

	// Heuristically determine if the content is likely an object or array.
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	// 1. Handle markdown wrapping (most common case).
	if strings.Contains(response, "```") {
		var matches []string
		// Prioritize object regex if it looks like an object.
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		// If object regex didn't match or it's clearly an array, try array regex.
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			candidate = matches[1]
		}
	} else if (isObject || isArray) && !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		// 2. Attempt to find the structure within conversational text.
		candidate = outermost(response, isObject, isArray)
	}

	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("%w. Extracted (truncated): %s", ErrNoJSON, truncateString(candidate, 500))
	}
	return json.RawMessage(candidate), nil
}

func outermost(response string, isObject, isArray bool) string {
	if isObject {
		fb := strings.Index(response, "{")
		lb := strings.LastIndex(response, "}")
		if fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	if isArray {
		fb := strings.Index(response, "[")
		lb := strings.LastIndex(response, "]")
		if fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	return response
}

// ParseJSONResponse attempts to parse an LLM response string into a target Go type using generics.
// It handles common LLM formatting issues, such as wrapping the JSON in markdown code blocks.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		// Provide a detailed error message including the extracted JSON snippet.
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(string(raw), 500))
	}
	return &result, nil
}

// ParseSelectorList reads a selector list from a reply. The list may be a
// JSON array, a JSON string holding a comma separated list, or plain comma
// separated text inside a fence.
func ParseSelectorList(response string) ([]string, error) {
	if raw, err := ExtractJSON(response); err == nil {
		var list []string
		if json.Unmarshal(raw, &list) == nil {
			return cleanSelectors(list), nil
		}
		var single string
		if json.Unmarshal(raw, &single) == nil {
			return splitSelectors(single), nil
		}
		var wrapped struct {
			Selectors json.RawMessage `json:"selectors"`
		}
		if json.Unmarshal(raw, &wrapped) == nil && len(wrapped.Selectors) > 0 {
			return ParseSelectorList(string(wrapped.Selectors))
		}
	}

	body := strings.TrimSpace(response)
	if m := codeBlockRegex.FindStringSubmatch(body); len(m) > 1 {
		body = m[1]
	}
	body = strings.Trim(body, "\"'")
	out := splitSelectors(body)
	if len(out) == 0 {
		return nil, ErrNoJSON
	}
	return out, nil
}

func splitSelectors(s string) []string {
	return cleanSelectors(strings.Split(s, ","))
}

func cleanSelectors(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
