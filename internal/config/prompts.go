package config

// DefaultNarrativePrompt is a text/template rendered with the query and its ranked items.
const DefaultNarrativePrompt = `You are assisting an intelligence analyst.
Answer the question using ONLY the findings below. Every sentence must be supported by at least one finding.
Cite findings by their reference (for example "entity:acme" or "relationship:r1").

Question: {{.Query}}

Findings:
{{range .Items}}- [{{.Ref}}] {{.Label}} (score {{printf "%.3f" .Score}})
{{range .Evidence}}    evidence {{.DocumentID}}: "{{.Excerpt}}"
{{end}}{{end}}
Respond with a JSON object: {"answer": "<two to four sentences>", "citations": ["<reference>", ...]}`
