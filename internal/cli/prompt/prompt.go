// Package prompt provides the interactive terminal prompts used by
// cmd/cpdlc-client, adapted from the daemon project's own CLI prompt
// helpers onto promptui directly (no viper/cobra wiring needed for a
// single reference client).
package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err indicates the user aborted the prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for text input with a default value.
func Input(label, defaultValue string) (string, error) {
	prompt := promptui.Prompt{Label: label, Default: defaultValue}
	result, err := prompt.Run()
	return result, wrapError(err)
}

// InputRequired prompts for text input that may not be empty.
func InputRequired(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if input == "" {
				return errors.New("required")
			}
			return nil
		},
	}
	result, err := prompt.Run()
	return result, wrapError(err)
}

// SelectOption is one entry in a Select list.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

func selectTemplates() *promptui.SelectTemplates {
	return &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
}

// Select prompts the user to pick one of options, returning its Value.
func Select(label string, options []SelectOption) (string, error) {
	templates := selectTemplates()
	if len(options) > 0 && options[0].Description != "" {
		templates.Details = `
{{ "Description:" | faint }}	{{ .Description }}`
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}

// SelectString prompts the user to pick one of a plain string list.
func SelectString(label string, items []string) (string, error) {
	prompt := promptui.Select{Label: label, Items: items, Size: 10}
	_, result, err := prompt.Run()
	return result, wrapError(err)
}
