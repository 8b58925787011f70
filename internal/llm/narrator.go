package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/agenthands/argus/internal/core/common"
	"github.com/agenthands/argus/internal/core/model"
)

type narrative struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

// Narrator asks an LLM for a short prose summary of ranked items. Citations outside the
// returned items are discarded, and an answer left with no valid citation is rejected.
type Narrator struct {
	client LLMClient
	prompt *template.Template
}

func NewNarrator(client LLMClient, prompt string) (*Narrator, error) {
	tmpl, err := template.New("narrative").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse narrative prompt: %w", err)
	}
	return &Narrator{client: client, prompt: tmpl}, nil
}

func (n *Narrator) Narrate(ctx context.Context, resp *model.QueryResponse) (string, error) {
	var buf bytes.Buffer
	if err := n.prompt.Execute(&buf, resp); err != nil {
		return "", fmt.Errorf("failed to render narrative prompt: %w", err)
	}

	raw, err := n.client.Generate(ctx, buf.String())
	if err != nil {
		return "", fmt.Errorf("failed to generate narrative: %w", err)
	}
	out, err := common.ParseJSON[narrative](raw)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(out.Answer)
	if answer == "" {
		return "", fmt.Errorf("narrative has no answer")
	}

	known := make(map[string]struct{}, len(resp.Items))
	for _, it := range resp.Items {
		known[it.Ref.String()] = struct{}{}
	}
	var cited []string
	seen := make(map[string]struct{})
	for _, c := range out.Citations {
		c = strings.TrimSpace(c)
		if _, ok := known[c]; !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		cited = append(cited, c)
	}
	if len(cited) == 0 {
		return "", fmt.Errorf("narrative cites none of the returned items")
	}
	return fmt.Sprintf("%s [sources: %s]", answer, strings.Join(cited, ", ")), nil
}
