package orchestrate

import (
	"context"

	"github.com/bravohq/dispatch/internal/ai"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/events"
	"github.com/bravohq/dispatch/internal/upload"
	"go.uber.org/zap"
)

// GenerationFailureReply is persisted and returned when the chat
// backend errors out; the request itself still completes.
const GenerationFailureReply = "Error generating response."

type Request struct {
	SessionID   string
	Message     string
	Model       string
	Temperature float32
	// SystemPrompt overrides the configured prompt when non-empty.
	SystemPrompt string
}

type Response struct {
	UserMessage         string       `json:"user_message"`
	AssistantReply      string       `json:"assistant_reply"`
	ConversationHistory []ai.Message `json:"conversation_history"`
	Orchestration       Intent       `json:"orchestration"`

	// Row id of the persisted assistant message, for job bookkeeping.
	AssistantMessageID uint64 `json:"-"`
}

// Pipeline runs one chat turn end to end: classify, route, assemble,
// trim, generate, persist. Requests are independent; the only shared
// state is the store.
type Pipeline struct {
	gateway      ai.Gateway
	classifier   *Classifier
	router       *Router
	convs        *conversation.Repo
	files        *upload.Registry
	trimmer      *Trimmer
	notifier     events.Notifier
	logger       *zap.Logger
	systemPrompt string
	maxMessages  int
}

func NewPipeline(
	gateway ai.Gateway,
	classifier *Classifier,
	router *Router,
	convs *conversation.Repo,
	files *upload.Registry,
	trimmer *Trimmer,
	notifier events.Notifier,
	systemPrompt string,
	maxMessages int,
	logger *zap.Logger,
) *Pipeline {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &Pipeline{
		gateway:      gateway,
		classifier:   classifier,
		router:       router,
		convs:        convs,
		files:        files,
		trimmer:      trimmer,
		notifier:     notifier,
		systemPrompt: systemPrompt,
		maxMessages:  maxMessages,
		logger:       logger,
	}
}

// Respond handles one inbound message. Errors are persistence-level
// only; classification and generation failures degrade to sentinel
// content instead of failing the request.
func (p *Pipeline) Respond(ctx context.Context, req Request) (*Response, error) {
	conv, err := p.convs.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	stored, err := p.convs.RecentMessages(ctx, conv.ID, p.maxMessages)
	if err != nil {
		return nil, err
	}
	history := make([]ai.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}

	sessionFiles, err := p.files.ListBySession(ctx, req.SessionID)
	if err != nil {
		p.logger.Warn("listing session files failed", zap.Error(err))
		sessionFiles = nil
	}

	intent := p.classifier.Classify(ctx, req.Message, history, sessionFiles)
	p.notifier.Publish(ctx, events.Event{
		Type:      events.TypeStatusUpdate,
		SessionID: req.SessionID,
		Message:   statusMessage(intent),
	})

	res := p.router.Route(ctx, intent, req.Message, history, req.SessionID)

	systemPrompt := p.systemPrompt
	if req.SystemPrompt != "" {
		systemPrompt = req.SystemPrompt
	}

	reply := res.Reply
	if !res.Terminal {
		messages := Assemble(systemPrompt, history, res.Supplemental, req.Message)
		messages = p.trimmer.Trim(messages)

		reply, err = p.gateway.Chat(ctx, ai.ChatRequest{
			Messages:    messages,
			Model:       req.Model,
			Temperature: req.Temperature,
		})
		if err != nil {
			p.logger.Error("chat generation failed", zap.Error(err))
			reply = GenerationFailureReply
		}
	}

	if !res.AssistantOnly && req.Message != "" {
		if _, err := p.convs.AppendMessage(ctx, conv.ID, ai.RoleUser, req.Message); err != nil {
			return nil, err
		}
	}
	assistantMsg, err := p.convs.AppendMessage(ctx, conv.ID, ai.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}

	p.notifier.Publish(ctx, events.Event{
		Type:      events.TypeTaskComplete,
		SessionID: req.SessionID,
		Answer:    reply,
	})

	return &Response{
		UserMessage:         req.Message,
		AssistantReply:      reply,
		ConversationHistory: history,
		Orchestration:       intent,
		AssistantMessageID:  assistantMsg.ID,
	}, nil
}

func statusMessage(intent Intent) string {
	switch {
	case intent.InternetSearch:
		return "Searching the internet..."
	case intent.ImageGeneration:
		return "Creating the image..."
	case intent.CodeOrchestration, intent.CodeStructureOrchestration:
		return "Processing your code request..."
	case intent.FileOrchestration:
		return "Analyzing the uploaded file..."
	default:
		return "Assistant is thinking..."
	}
}
