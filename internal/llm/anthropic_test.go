package llm

import "testing"

func TestConvertToAnthropicSeparatesSystemPrompt(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are a firmware repair assistant."},
		{Role: "user", Content: "Fix this build error."},
		{Role: "assistant", Content: "Here is the fix."},
	}

	result, system := convertToAnthropic(messages)

	if system != "You are a firmware repair assistant." {
		t.Errorf("system = %q, want extracted system prompt", system)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2 (system message excluded)", len(result))
	}
	if result[0].Role != "user" || result[1].Role != "assistant" {
		t.Errorf("unexpected role ordering: %+v", result)
	}
}

func TestConvertToAnthropicJoinsMultipleSystemMessages(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "first"},
		{Role: "system", Content: "second"},
		{Role: "user", Content: "go"},
	}

	result, system := convertToAnthropic(messages)

	if system != "first\n\nsecond" {
		t.Errorf("system = %q, want joined system prompts", system)
	}
	if len(result) != 1 {
		t.Fatalf("len(result) = %d, want 1", len(result))
	}
}

func TestConvertToAnthropicNoSystemMessages(t *testing.T) {
	messages := []Message{{Role: "user", Content: "hello"}}

	result, system := convertToAnthropic(messages)

	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if len(result) != 1 {
		t.Fatalf("len(result) = %d, want 1", len(result))
	}
}
