package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON cleans and unmarshals a JSON object embedded in an LLM response.
// It tolerates surrounding prose and markdown code fences.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	jsonStr := response
	if i := strings.Index(jsonStr, "```"); i != -1 {
		jsonStr = jsonStr[i+3:]
		jsonStr = strings.TrimPrefix(jsonStr, "json")
		if j := strings.Index(jsonStr, "```"); j != -1 {
			jsonStr = jsonStr[:j]
		}
	}

	start := strings.Index(jsonStr, "{")
	end := strings.LastIndex(jsonStr, "}")
	if start == -1 || end == -1 || end < start {
		return zero, fmt.Errorf("no JSON object found in response")
	}
	jsonStr = jsonStr[start : end+1]

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, jsonStr)
	}
	return result, nil
}
