// Package search wraps the Google Custom Search API behind the
// orchestration pipeline's web-search boundary.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bravohq/dispatch/internal/ai"
	"go.uber.org/zap"
)

const (
	// FailureReply is what the pipeline sees when the search backend
	// misbehaves. The request still completes with degraded quality.
	FailureReply = "An error occurred while performing the web search."

	noResultsReply = "No search results found."

	defaultBaseURL   = "https://www.googleapis.com/customsearch/v1"
	maxResultItems   = 5
	maxContentLength = 3000
)

type Client struct {
	apiKey   string
	engineID string
	baseURL  string
	model    string
	gateway  ai.Gateway
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(apiKey, engineID, model string, gateway ai.Gateway, logger *zap.Logger) *Client {
	return &Client{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		model:    model,
		gateway:  gateway,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search runs the user's request through query optimization, performs
// the search, and aggregates the results with source annotations.
// Upstream failures come back as sentinel text, never as an error; the
// only error cause is context cancellation.
func (c *Client) Search(ctx context.Context, query string, history []ai.Message) (string, error) {
	optimized := c.optimizeQuery(ctx, query, history)
	c.logger.Debug("web search", zap.String("query", query), zap.String("optimized", optimized))

	// A bare URL skips the search API and is fetched directly.
	if u, err := url.Parse(optimized); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		if content := c.fetchPage(ctx, optimized); content != "" {
			return content, nil
		}
		return "Couldn't fetch information from the provided URL.", nil
	}

	resp, err := c.query(ctx, optimized)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("web search failed", zap.Error(err))
		return FailureReply, nil
	}

	if len(resp.Items) == 0 {
		// Broaden once: tell the optimizer the previous terms found
		// nothing and try again.
		retryInput := fmt.Sprintf(
			"%s\nThis is what you provided last time and resulted in no search results. Try again, but be more general to allow a broader search:\n%s",
			query, optimized)
		optimized = c.optimizeQuery(ctx, retryInput, history)
		resp, err = c.query(ctx, optimized)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("web search retry failed", zap.Error(err))
			return FailureReply, nil
		}
		if len(resp.Items) == 0 {
			return noResultsReply, nil
		}
	}

	return aggregate(resp), nil
}

func (c *Client) query(ctx context.Context, q string) (*searchResponse, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// optimizeQuery asks the generation backend for concise search terms.
// Falls back to the raw input when the call fails.
func (c *Client) optimizeQuery(ctx context.Context, input string, history []ai.Message) string {
	prompt := fmt.Sprintf(
		"Generate concise search terms for a Google search based on the user input. "+
			"Return only the search terms, with no additional formatting or headings. "+
			"Be as brief and relevant as possible. The current date, if relevant, is %s. "+
			"Do not use quotation marks.",
		time.Now().Format("2006-01-02"))

	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: prompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: "User Input: " + input})

	terms, err := c.gateway.Chat(ctx, ai.ChatRequest{
		Messages:    msgs,
		Model:       c.model,
		Temperature: 0.4,
		MaxTokens:   60,
	})
	if err != nil {
		c.logger.Warn("search term generation failed", zap.Error(err))
		return input
	}
	if i := strings.IndexByte(terms, '\n'); i >= 0 {
		terms = terms[:i]
	}
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return input
	}
	return terms
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentLength))
	if err != nil {
		return ""
	}
	return string(body)
}

func aggregate(resp *searchResponse) string {
	var b strings.Builder
	count := 0
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		if count >= maxResultItems {
			break
		}
		entry := fmt.Sprintf("From %s:\n%s\n%s", item.Link, item.Title, item.Snippet)
		if len(entry) > maxContentLength {
			entry = entry[:maxContentLength]
		}
		b.WriteString(entry)
		b.WriteString("\n\n")
		count++
	}
	if count == 0 {
		return noResultsReply
	}
	return strings.TrimSpace(b.String())
}
