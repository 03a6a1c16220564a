package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"

	"manualqa/internal/chunker"
)

const systemPromptHeader = "Use the following pieces of context to answer the user's question. \n" +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n" +
	"----------------\n"

// Synthesizer answers a question from retrieved chunks with a single chat
// completion.
type Synthesizer struct {
	client      *Client
	model       string
	temperature float64
}

func NewSynthesizer(client *Client, model string, temperature float64) *Synthesizer {
	return &Synthesizer{client: client, model: model, temperature: temperature}
}

// Synthesize returns the model's reply verbatim. The whole context is sent
// as is; prompts beyond the model's window fail at the provider.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []chunker.Chunk) (string, error) {
	return s.client.Chat(ctx, s.model, s.temperature,
		openai.SystemMessage(BuildSystemPrompt(chunks)),
		openai.UserMessage(query),
	)
}

// BuildSystemPrompt stuffs the chunk texts, separated by blank lines, into
// the system message.
func BuildSystemPrompt(chunks []chunker.Chunk) string {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	return systemPromptHeader + strings.Join(texts, "\n\n")
}
