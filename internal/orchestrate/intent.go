// Package orchestrate is the request pipeline: classify the user's
// intent, dispatch to exactly one handler, assemble and trim the
// prompt, and persist the completed turn.
package orchestrate

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Intent is the request-scoped classification of one user turn. The
// raw classifier output is advisory; the router's precedence order
// decides which single branch runs.
type Intent struct {
	ImageGeneration            bool     `json:"image_generation"`
	ImagePrompt                string   `json:"image_prompt"`
	InternetSearch             bool     `json:"internet_search"`
	FileOrchestration          bool     `json:"file_orchestration"`
	FileIDs                    []string `json:"file_ids"`
	CodeOrchestration          bool     `json:"code_orchestration"`
	CodeStructureOrchestration bool     `json:"code_structure_orchestration"`
	RandNum                    []int    `json:"rand_num"`
}

// DefaultIntent is the all-false fallback; it routes to plain chat.
func DefaultIntent() Intent {
	return Intent{FileIDs: []string{}, RandNum: []int{}}
}

// parseIntent decodes the model's JSON, tolerating a markdown code
// fence around it. Malformed fields are dropped individually rather
// than failing the whole record.
func parseIntent(raw string) (Intent, error) {
	raw = stripFences(strings.TrimSpace(raw))

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Intent{}, err
	}

	intent := DefaultIntent()
	intent.ImageGeneration = boolField(fields, "image_generation")
	intent.ImagePrompt = stringField(fields, "image_prompt")
	intent.InternetSearch = boolField(fields, "internet_search")
	intent.FileOrchestration = boolField(fields, "file_orchestration")
	intent.FileIDs = stringListField(fields, "file_ids")
	intent.CodeOrchestration = boolField(fields, "code_orchestration")
	intent.CodeStructureOrchestration = boolField(fields, "code_structure_orchestration")
	intent.RandNum = intListField(fields, "rand_num")
	return intent, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func boolField(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func stringField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func stringListField(fields map[string]any, key string) []string {
	raw, ok := fields[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.Itoa(int(v)))
		}
	}
	return out
}

func intListField(fields map[string]any, key string) []int {
	raw, ok := fields[key].([]any)
	if !ok {
		return []int{}
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		if v, ok := item.(float64); ok {
			out = append(out, int(v))
		}
	}
	return out
}
