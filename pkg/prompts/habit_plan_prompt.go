package prompts

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed templates/habit_plan_prompt.tmpl
var habitPlanPromptTemplate string

type HabitPlanPrompt struct {
	Risk        string
	Constraints string
	Memories    string
	Signals     string
	Strict      bool
}

func BuildHabitPlanPrompt(data HabitPlanPrompt) (string, error) {
	tmpl, err := template.New("habit_plan").Parse(habitPlanPromptTemplate)
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
