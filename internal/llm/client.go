package llm

import (
	"context"
	"errors"
)

// systemPrompt pins every provider to the narrator's reply contract.
const systemPrompt = "You summarise intelligence findings. Use only the findings you are given and reply with a single JSON object."

const maxNarrativeTokens = 512

var (
	errNoContent   = errors.New("model returned no content")
	errNoEmbedding = errors.New("model returned no embedding")
)

// LLMClient produces text completions. It backs the optional narrative answer.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder produces vectors tagged with the model version they came from. Query vectors are
// only ever compared with stored vectors of the same version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

func versionTag(provider, model, override string) string {
	if override != "" {
		return override
	}
	return provider + "/" + model
}
