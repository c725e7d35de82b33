package config_test

import (
	"strings"
	"testing"

	"github.com/ogulcanz/sesquiz/internal/config"
)

// minimalYAML is the smallest config that passes validation.
const minimalYAML = `
quiz:
  file: quiz.json
providers:
  output:
    name: coqui
  input:
    name: whisper
`

func TestValidate_MinimalIsValid(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingQuizFile(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  output:
    name: coqui
  input:
    name: whisper
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing quiz.file, got nil")
	}
	if !strings.Contains(err.Error(), "quiz.file") {
		t.Errorf("error should mention quiz.file, got: %v", err)
	}
}

func TestValidate_InvalidLanguageTag(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Quiz: config.QuizConfig{File: "quiz.json", Language: "not a tag!!"},
		Providers: config.ProvidersConfig{
			Output: config.ProviderEntry{Name: "coqui"},
			Input:  config.ProviderEntry{Name: "whisper"},
		},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid language tag, got nil")
	}
	if !strings.Contains(err.Error(), "quiz.language") {
		t.Errorf("error should mention quiz.language, got: %v", err)
	}
}

func TestValidate_ValidLanguageTags(t *testing.T) {
	t.Parallel()
	for _, tag := range []string{"tr", "tr-TR", "en", "en-US"} {
		tag := tag
		t.Run(tag, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{
				Quiz: config.QuizConfig{File: "quiz.json", Language: tag},
				Providers: config.ProvidersConfig{
					Output: config.ProviderEntry{Name: "coqui"},
					Input:  config.ProviderEntry{Name: "whisper"},
				},
			}
			if err := config.Validate(cfg); err != nil {
				t.Errorf("unexpected error for tag %q: %v", tag, err)
			}
		})
	}
}

func TestValidate_IncorrectFormatNeedsVerb(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Quiz: config.QuizConfig{
			File:     "quiz.json",
			Feedback: config.FeedbackConfig{IncorrectFormat: "Yanlış."},
		},
		Providers: config.ProvidersConfig{
			Output: config.ProviderEntry{Name: "coqui"},
			Input:  config.ProviderEntry{Name: "whisper"},
		},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatalf("expected error for incorrect_format without %%s, got nil")
	}
	if !strings.Contains(err.Error(), "incorrect_format") {
		t.Errorf("error should mention incorrect_format, got: %v", err)
	}
}

func TestValidate_MissingProviders(t *testing.T) {
	t.Parallel()
	yaml := `
quiz:
  file: quiz.json
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "providers.output.name") {
		t.Errorf("error should mention providers.output.name, got: %v", err)
	}
	if !strings.Contains(errStr, "providers.input.name") {
		t.Errorf("error should mention providers.input.name, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "quiz.file") {
		t.Errorf("error should mention quiz.file, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	outputNames := config.ValidProviderNames["output"]
	if len(outputNames) == 0 {
		t.Fatal("ValidProviderNames[\"output\"] should not be empty")
	}
	found := false
	for _, n := range outputNames {
		if n == "elevenlabs" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"output\"] should contain \"elevenlabs\"")
	}
}
