package orchestrate

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/bravohq/dispatch/internal/ai"
	"go.uber.org/zap"
)

// Result is one handler's outcome. A terminal result is returned to
// the user as-is; a non-terminal one feeds its supplemental context
// into general chat generation.
type Result struct {
	Terminal bool
	Reply    string
	// Supplemental is injected into the prompt right before the user
	// turn.
	Supplemental *ai.Message
	// AssistantOnly marks terminal replies that persist no user
	// message (image and diagram turns).
	AssistantOnly bool
}

type Imager interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, history []ai.Message) (string, error)
}

type CodeSource interface {
	Content() (string, error)
}

type Diagrammer interface {
	Diagram(ctx context.Context) (string, error)
}

// Router dispatches an Intent to exactly one handler. Precedence is a
// fixed ordered check list; the first matching branch wins even when
// the classifier set several flags.
type Router struct {
	imager     Imager
	diagrammer Diagrammer
	files      *FileHandler
	code       CodeSource
	searcher   Searcher
	randInt    func(lo, hi int) int
	logger     *zap.Logger
}

func NewRouter(imager Imager, diagrammer Diagrammer, files *FileHandler, code CodeSource, searcher Searcher, logger *zap.Logger) *Router {
	return &Router{
		imager:     imager,
		diagrammer: diagrammer,
		files:      files,
		code:       code,
		searcher:   searcher,
		randInt: func(lo, hi int) int {
			return lo + rand.IntN(hi-lo+1)
		},
		logger: logger,
	}
}

func (r *Router) Route(ctx context.Context, intent Intent, userMessage string, history []ai.Message, sessionID string) Result {
	switch {
	case intent.ImageGeneration:
		return r.handleImage(ctx, intent.ImagePrompt)
	case intent.CodeStructureOrchestration:
		return r.handleDiagram(ctx)
	case intent.FileOrchestration:
		return r.files.Handle(ctx, intent.FileIDs, sessionID)
	case intent.CodeOrchestration:
		return r.handleCode()
	case intent.InternetSearch:
		return r.handleSearch(ctx, userMessage, history)
	case len(intent.RandNum) > 0:
		return r.handleRandom(intent.RandNum)
	default:
		return Result{}
	}
}

func (r *Router) handleImage(ctx context.Context, prompt string) Result {
	if prompt == "" {
		return Result{Terminal: true, AssistantOnly: true, Reply: "No image prompt provided."}
	}
	url, err := r.imager.GenerateImage(ctx, prompt)
	if err != nil {
		r.logger.Error("image generation failed", zap.Error(err))
		return Result{Terminal: true, AssistantOnly: true, Reply: "Failed to generate image."}
	}
	return Result{Terminal: true, AssistantOnly: true, Reply: fmt.Sprintf("![Generated Image](%s)", url)}
}

func (r *Router) handleDiagram(ctx context.Context) Result {
	url, err := r.diagrammer.Diagram(ctx)
	if err != nil || url == "" {
		if err != nil {
			r.logger.Error("diagram generation failed", zap.Error(err))
		}
		return Result{Terminal: true, AssistantOnly: true, Reply: "Failed to generate codebase structure diagram."}
	}
	return Result{Terminal: true, AssistantOnly: true, Reply: fmt.Sprintf("![Codebase Structure](%s)", url)}
}

func (r *Router) handleCode() Result {
	content, err := r.code.Content()
	if err != nil {
		r.logger.Warn("reading code files failed", zap.Error(err))
		return Result{}
	}
	if content == "" {
		return Result{Terminal: true, Reply: "No code files found."}
	}
	return Result{
		Supplemental: &ai.Message{
			Role:    ai.RoleSystem,
			Content: "You have been supplemented with codebase information.\n***" + content + "***",
		},
	}
}

func (r *Router) handleSearch(ctx context.Context, query string, history []ai.Message) Result {
	content, err := r.searcher.Search(ctx, query, history)
	if err != nil {
		r.logger.Warn("web search failed", zap.Error(err))
		return Result{}
	}
	return Result{
		Supplemental: &ai.Message{
			Role: ai.RoleSystem,
			Content: "You have internet content. Use only the most relevant info. " +
				"Include source links as [source](url).\n\nInternet Content:\n***" + content + "***",
		},
	}
}

func (r *Router) handleRandom(bounds []int) Result {
	if len(bounds) != 2 || bounds[0] > bounds[1] {
		return Result{Terminal: true, Reply: "Please provide a valid range for the random number."}
	}
	n := r.randInt(bounds[0], bounds[1])
	return Result{Terminal: true, Reply: fmt.Sprintf("Your random number between %d and %d is %d.", bounds[0], bounds[1], n)}
}
