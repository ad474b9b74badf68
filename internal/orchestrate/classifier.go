package orchestrate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bravohq/dispatch/internal/ai"
	"github.com/bravohq/dispatch/internal/upload"
	"go.uber.org/zap"
)

const (
	classifierMaxTokens     = 300
	classifierHistoryWindow = 5
)

var fileRefPattern = regexp.MustCompile(`FILE:(\d+)`)

// Classifier maps one user turn to an Intent with a single generation
// call. It never fails: any error along the way yields the all-false
// default, which routes to plain chat.
type Classifier struct {
	gateway ai.Gateway
	model   string
	logger  *zap.Logger
}

func NewClassifier(gateway ai.Gateway, model string, logger *zap.Logger) *Classifier {
	return &Classifier{gateway: gateway, model: model, logger: logger}
}

func (c *Classifier) Classify(ctx context.Context, userMessage string, history []ai.Message, files []upload.File) Intent {
	msgs := make([]ai.Message, 0, classifierHistoryWindow+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: classifierInstruction(files)})
	msgs = append(msgs, windowHistory(history)...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: userMessage})

	raw, err := c.gateway.Chat(ctx, ai.ChatRequest{
		Messages:    msgs,
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   classifierMaxTokens,
	})
	if err != nil {
		c.logger.Warn("intent classification failed, using default", zap.Error(err))
		return DefaultIntent()
	}

	intent, err := parseIntent(raw)
	if err != nil {
		c.logger.Warn("intent response was not valid JSON, using default",
			zap.String("response", raw), zap.Error(err))
		return DefaultIntent()
	}

	if intent.FileOrchestration {
		intent.FileIDs = resolveFileIDs(userMessage, files)
	}
	return intent
}

// resolveFileIDs prefers explicit FILE:<id> references in the message;
// without any, a file question means "all of this session's files".
func resolveFileIDs(userMessage string, files []upload.File) []string {
	matches := fileRefPattern.FindAllStringSubmatch(userMessage, -1)
	if len(matches) > 0 {
		seen := make(map[string]struct{}, len(matches))
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			if _, dup := seen[m[1]]; dup {
				continue
			}
			seen[m[1]] = struct{}{}
			ids = append(ids, m[1])
		}
		return ids
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strconv.FormatUint(f.ID, 10))
	}
	return ids
}

// windowHistory keeps the last few user/assistant turns; system and
// supplemental entries are excluded from classification context.
func windowHistory(history []ai.Message) []ai.Message {
	filtered := make([]ai.Message, 0, len(history))
	for _, m := range history {
		if m.Role == ai.RoleUser || m.Role == ai.RoleAssistant {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) > classifierHistoryWindow {
		filtered = filtered[len(filtered)-classifierHistoryWindow:]
	}
	return filtered
}

func classifierInstruction(files []upload.File) string {
	var fileList strings.Builder
	for _, f := range files {
		fmt.Fprintf(&fileList, "File ID: %d, Filename: %s\n", f.ID, f.OriginalFilename)
	}

	return "As an AI assistant, analyze the user input, including the last 5 user queries, and output a JSON object with the following keys:\n" +
		"- \"image_generation\": (boolean)\n" +
		"- \"image_prompt\": (string)\n" +
		"- \"internet_search\": (boolean)\n" +
		"- \"file_orchestration\": (boolean)\n" +
		"- \"file_ids\": (list of strings)\n" +
		"- \"code_orchestration\": (boolean)\n" +
		"- \"code_structure_orchestration\": (boolean)\n" +
		"- \"rand_num\": (list)\n\n" +
		"Respond with only the JSON object and no additional text.\n\n" +
		"Guidelines:\n" +
		"1. \"image_generation\" should be true only when an image is requested.\n" +
		"2. \"image_prompt\" should contain the prompt for image generation if \"image_generation\" is true.\n" +
		"3. \"internet_search\" should be true when the user asks for information that might require an internet search. If asking about an uploaded file, set to false.\n" +
		"4. \"file_orchestration\" should be true when the user asks for information about a file that has been uploaded. Set to true if asked about one of these files:\n" + fileList.String() +
		"5. \"file_ids\" should contain the ids of the requested files if \"file_orchestration\" is true. Detect file references in the format \"FILE:<id>\".\n" +
		"6. \"code_orchestration\" should be true when the user is asking about this assistant's own code.\n" +
		"7. \"code_structure_orchestration\" should be true only when the user asks specifically to visualize the code base architecture or structure.\n" +
		"8. \"rand_num\" should contain [lowest_num, highest_num] if the user requests a random number within a range.\n\n" +
		"Respond in JSON format.\nIMPORTANT: Boolean values only: true or false."
}
