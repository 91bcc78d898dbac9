package nlu

import "testing"

func TestParseAgentReply(t *testing.T) {
	raw := `{"action":"product.search","fulfillment":"Here you go!","action_incomplete":false,"parameters":{"category":"shoes"},"contexts":[{"name":"shopping"}]}`

	resp, err := parseAgentReply(raw)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Action != ActionProductSearch {
		t.Errorf("expected product.search, got %s", resp.Action)
	}
	if resp.Fulfillment != "Here you go!" {
		t.Errorf("unexpected fulfillment: %q", resp.Fulfillment)
	}
	if resp.Parameters["category"] != "shoes" {
		t.Errorf("expected category parameter, got %v", resp.Parameters)
	}
	if len(resp.Contexts) == 0 {
		t.Error("expected contexts blob preserved")
	}
}

func TestParseAgentReplyCodeFence(t *testing.T) {
	raw := "```json\n{\"action\":\"input.unknown\",\"fulfillment\":\"Sorry?\",\"action_incomplete\":true}\n```"

	resp, err := parseAgentReply(raw)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Action != ActionUnknown || !resp.ActionIncomplete {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestParseAgentReplyInvalid(t *testing.T) {
	if _, err := parseAgentReply("not json at all"); err == nil {
		t.Error("expected error for non-JSON reply")
	}
}

func TestNewOpenAIAgentRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIAgent(); err == nil {
		t.Error("expected error when no API key is configured")
	}
}
