package orchestrate

import (
	"encoding/json"
	"strings"

	"github.com/bravohq/dispatch/internal/ai"
	tiktoken "github.com/pkoukk/tiktoken-go"
)

const styleDirective = "Generate answers in Markdown. Use headings, lists, and bullet points. " +
	"Keep responses under 1500 tokens."

// Assemble builds the generation prompt in its load-bearing order:
// system, history, supplemental context, then the user turn. The
// supplemental message sits right before the user message so it reads
// as freshly retrieved.
func Assemble(systemPrompt string, history []ai.Message, supplemental *ai.Message, userMessage string) []ai.Message {
	messages := make([]ai.Message, 0, len(history)+3)
	messages = append(messages, ai.Message{
		Role:    ai.RoleSystem,
		Content: systemPrompt + "\n\nAdditional Guidelines:\n" + styleDirective,
	})
	messages = append(messages, history...)
	if supplemental != nil {
		messages = append(messages, *supplemental)
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: userMessage})
	return messages
}

// TokenCounter measures text the way the generation backend will.
type TokenCounter interface {
	Count(text string) int
}

type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter approximates cost by whitespace-separated words. It is
// the fallback when the model's encoding cannot be loaded.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// Trimmer drops the oldest messages until the prompt fits the token
// budget. The final (user) message survives regardless of size.
type Trimmer struct {
	counter TokenCounter
	budget  int
}

func NewTrimmer(counter TokenCounter, budget int) *Trimmer {
	return &Trimmer{counter: counter, budget: budget}
}

func (t *Trimmer) Trim(messages []ai.Message) []ai.Message {
	if len(messages) == 0 {
		return messages
	}

	total := 0
	kept := 0
	for i := len(messages) - 1; i >= 0; i-- {
		encoded, err := json.Marshal(messages[i])
		if err != nil {
			break
		}
		cost := t.counter.Count(string(encoded))
		if total+cost > t.budget {
			break
		}
		total += cost
		kept++
	}

	if kept == 0 {
		return messages[len(messages)-1:]
	}
	return messages[len(messages)-kept:]
}
