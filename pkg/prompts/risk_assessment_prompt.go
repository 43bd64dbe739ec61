package prompts

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/risk_assessment_prompt.tmpl
var riskAssessmentPromptTemplate string

type RiskAssessmentPrompt struct {
	Profile    string
	Guidelines string
	Memories   string
	Strict     bool
}

func BuildRiskAssessmentPrompt(data RiskAssessmentPrompt) (string, error) {
	tmpl, err := template.New("risk_assessment").Parse(riskAssessmentPromptTemplate)
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
