package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// OpenAI-compatible wire types. The images field on responses and on the
// terminal stream chunk is an out-of-protocol extension carrying generated
// artifacts.

type chatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

type chunkDelta struct {
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type completionChunk struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chunkChoice          `json:"choices"`
	Images  []domain.ImageArtifact `json:"images,omitempty"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []completionChoice     `json:"choices"`
	Usage   completionUsage        `json:"usage"`
	Images  []domain.ImageArtifact `json:"images,omitempty"`
}

// estimateTokens approximates usage as one token per four characters,
// rounded up.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// splitChunks re-chunks the full text on single-space boundaries, keeping the
// removed space attached to every chunk but the last so that concatenating
// the chunks in order reproduces the text byte-exactly.
func splitChunks(text string) []string {
	words := strings.Split(text, " ")
	chunks := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			chunks[i] = w + " "
		} else {
			chunks[i] = w
		}
	}
	return chunks
}

// streamCompletion frames the result as server-sent events: one delta chunk
// per word, a terminal chunk with finish_reason "stop" (carrying artifacts
// when present), then the [DONE] sentinel. A disconnected client stops the
// stream cleanly.
func streamCompletion(w http.ResponseWriter, r *http.Request, text, model string, artifacts []domain.ImageArtifact) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	id := newCompletionID()
	created := time.Now().Unix()

	emit := func(chunk completionChunk) bool {
		select {
		case <-r.Context().Done():
			return false
		default:
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	if strings.TrimSpace(text) != "" {
		for _, content := range splitChunks(text) {
			ok := emit(completionChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   model,
				Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{Content: content}}},
			})
			if !ok {
				return
			}
		}
	}

	stop := "stop"
	final := completionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []chunkChoice{{Index: 0, FinishReason: &stop}},
		Images:  artifacts,
	}
	if !emit(final) {
		return
	}
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// writeCompletion renders the single-shot response object. Generated
// artifacts are appended to the content as a human-readable block and also
// attached as the non-standard images field.
func writeCompletion(w http.ResponseWriter, text, model string, messages []domain.ChatMessage, artifacts []domain.ImageArtifact) {
	content := text
	if len(artifacts) > 0 {
		var b strings.Builder
		b.WriteString(content)
		b.WriteString("\n\n[Generated Images]\n")
		for _, a := range artifacts {
			ref := a.URL
			if ref == "" {
				ref = "/api/images/" + a.ID
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", a.Filename, a.MIME, ref)
		}
		content = b.String()
	}

	promptTokens := 0
	for _, m := range messages {
		promptTokens += estimateTokens(m.Content)
	}
	completionTokens := estimateTokens(text)

	writeJSON(w, http.StatusOK, completionResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []completionChoice{{
			Index:        0,
			Message:      completionMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: completionUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Images: artifacts,
	})
}
