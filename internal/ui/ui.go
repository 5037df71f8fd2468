package ui

import (
	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// Confirm asks a yes/no question on the terminal. An interrupted prompt
// counts as a refusal.
func Confirm(message string, defaultValue bool) (bool, error) {
	ok := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		if err == terminal.InterruptErr {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Password reads a secret without echoing it.
func Password(message, help string) (string, error) {
	var value string
	prompt := &survey.Password{
		Message: message,
		Help:    help,
	}
	if err := survey.AskOne(prompt, &value, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return value, nil
}
