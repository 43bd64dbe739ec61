package prompts

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/general_answer_prompt.tmpl
var generalAnswerPromptTemplate string

type GeneralAnswerPrompt struct {
	Question   string
	Guidelines string
	Memories   string
}

func BuildGeneralAnswerPrompt(data GeneralAnswerPrompt) (string, error) {
	tmpl, err := template.New("general_answer").Parse(generalAnswerPromptTemplate)
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
