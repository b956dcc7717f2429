// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var relevancePromptTmpl = template.Must(template.New("relevance").Parse(`You are screening academic papers for a dataset. Decide whether the paper below matches the inclusion criteria.

Inclusion criteria:
{{.Criteria}}

Paper id: {{.ID}}
Title: {{.Title}}
Abstract:
{{if .Abstract}}{{.Abstract}}{{else}}(no abstract available){{end}}

Respond with a JSON object with two fields:
- is_relevant: true when the paper matches the criteria, false otherwise
- reason: one sentence explaining the decision

Do not include any text outside the JSON object.

Example response:
{"is_relevant": false, "reason": "The paper studies mice, the criteria require human subjects."}
`))

var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a research data extraction system. Read the attached paper and extract data points following the instructions.

Instructions:
{{.Instructions}}
{{if .Schema}}
Your response must be JSON that validates against this JSON schema:
{{.Schema}}
{{end}}
If the paper contains no matching data points, respond with an empty result that still honors the schema.
Respond with the JSON only. Do not include any text outside it.
`))

const systemPrompt = "You answer with strict JSON and nothing else."

type relevanceVars struct {
	ID, Title, Abstract, Criteria string
}

type extractionVars struct {
	Instructions, Schema string
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// jsonPayload pulls the JSON document out of a model reply. Replies wrapped
// in a Markdown code fence or surrounded by prose are unwrapped.
func jsonPayload(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	if s == "" {
		return "", false
	}
	if s[0] == '{' || s[0] == '[' {
		return s, true
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
