// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"text/template"

	"github.com/pdiddy/paper-extract/internal/index"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// PromptVersion names the prompt template and answer contract. It is part
// of every extraction fingerprint, so changing the template invalidates
// cached answers.
const PromptVersion = "extract/v1"

// truncationMarker ends a chunk cut short to fit the prompt budget.
const truncationMarker = " [...]"

// extractionPromptTmpl asks for one field from the retrieved chunks of one
// paper and fixes the JSON answer shape.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a research data extraction system. Your only task is to extract one specific piece of information (a "field") from excerpts of a scientific paper.

FIELD TO EXTRACT:
- Name: {{.Field.Name}}
{{- if .Field.Type}}
- Required type: {{.Field.Type}}
{{- end}}
- Description: {{.Field.Description}}

INSTRUCTIONS:
1. Read the excerpts below and find the information that matches the field description.
2. If the excerpts do not contain the information, set "found" to false and "value" to null. Do not guess.
3. Give a confidence between 0.0 (no confidence) and 1.0 (complete confidence).
4. Quote the sentence that supports the value verbatim in "evidence".
5. Explain briefly in "explanation" how you found the value, or why it is missing.
6. Respond with a single JSON object and nothing else.

JSON OUTPUT FORMAT:
{"value": "...", "confidence": 0.9, "found": true, "explanation": "...", "evidence": "..."}

PAPER EXCERPTS:
{{range .Chunks}}--- Chunk from Page {{.Page}} ---
{{.Text}}

{{end}}Now provide the JSON object for the field "{{.Field.Name}}" only.
`))

type promptData struct {
	Field  types.FieldSpec
	Chunks []types.Chunk
}

// renderPrompt executes the extraction prompt template.
func renderPrompt(field types.FieldSpec, chunks []types.Chunk) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, promptData{Field: field, Chunks: chunks}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// composePrompt renders the prompt within maxChars runes (0 means no limit).
// The lowest-ranked hits are dropped first; a single hit that alone exceeds
// the budget is truncated. It returns the prompt and the hits it contains.
func composePrompt(field types.FieldSpec, hits []index.Hit, maxChars int) (string, []index.Hit, error) {
	chunks := make([]types.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
	}

	for n := len(chunks); n >= 1; n-- {
		prompt, err := renderPrompt(field, chunks[:n])
		if err != nil {
			return "", nil, err
		}
		over := runeLen(prompt) - maxChars
		if maxChars <= 0 || over <= 0 {
			return prompt, hits[:n], nil
		}
		if n > 1 {
			continue
		}

		// One chunk left and still over budget: cut its text.
		text := []rune(chunks[0].Text)
		keep := len(text) - over - runeLen(truncationMarker)
		if keep < 0 {
			keep = 0
		}
		cut := chunks[0]
		cut.Text = string(text[:keep]) + truncationMarker
		prompt, err = renderPrompt(field, []types.Chunk{cut})
		if err != nil {
			return "", nil, err
		}
		return prompt, hits[:1], nil
	}

	prompt, err := renderPrompt(field, nil)
	return prompt, nil, err
}

func runeLen(s string) int {
	return len([]rune(s))
}
