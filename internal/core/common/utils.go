package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoObject = errors.New("no JSON object found in response")

// ParseJSON decodes the outermost JSON object found in an LLM response. Models like to wrap
// objects in markdown fences or chatter, so everything outside the first '{' and the last
// '}' is ignored.
func ParseJSON[T any](response string) (T, error) {
	var out T
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < start {
		return out, errNoObject
	}
	body := response[start : end+1]
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, body)
	}
	return out, nil
}
