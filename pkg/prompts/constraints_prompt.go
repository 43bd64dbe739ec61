package prompts

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/constraints_prompt.tmpl
var constraintsPromptTemplate string

type ConstraintsPrompt struct {
	Profile   string
	Utterance string
	Memories  string
	Strict    bool
}

func BuildConstraintsPrompt(data ConstraintsPrompt) (string, error) {
	tmpl, err := template.New("constraints").Parse(constraintsPromptTemplate)
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
