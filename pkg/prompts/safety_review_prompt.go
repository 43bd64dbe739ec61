package prompts

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/safety_review_prompt.tmpl
var safetyReviewPromptTemplate string

type SafetyReviewPrompt struct {
	Message    string
	Guidelines string
	Strict     bool
}

func BuildSafetyReviewPrompt(data SafetyReviewPrompt) (string, error) {
	tmpl, err := template.New("safety_review").Parse(safetyReviewPromptTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
