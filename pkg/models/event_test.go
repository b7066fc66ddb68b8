package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestToolResultEventStripsLLMContent(t *testing.T) {
	res := OkResult("read", "image loaded", map[string]any{"path": "a.png"})
	res.LLMContent = []LLMBlock{
		{Type: "text", Text: "image loaded"},
		{Type: "image", URL: "data:image/png;base64,AAAA"},
	}

	event := ToolResultEvent("tc1", res)
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if strings.Contains(string(payload), "llm_content") {
		t.Errorf("event payload leaked llm_content: %s", payload)
	}
	if len(res.LLMContent) != 2 {
		t.Errorf("strip mutated the original result")
	}
}

func TestToolResultEventErrorFlag(t *testing.T) {
	event := ToolResultEvent("tc1", ErrorResult("shell", "command not found"))
	if !event.IsError {
		t.Errorf("IsError = false for failed result")
	}
	event = ToolResultEvent("tc2", OkResult("shell", "ok", nil))
	if event.IsError {
		t.Errorf("IsError = true for success result")
	}
}

func TestCompleteEventSerializesEmptyContent(t *testing.T) {
	event := CompleteEvent("", nil, TokenUsage{})
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if _, ok := decoded["content"]; !ok {
		t.Errorf("complete event missing content field: %s", payload)
	}
	if _, ok := decoded["token_usage"]; !ok {
		t.Errorf("complete event missing token_usage field: %s", payload)
	}
}

func TestToolResultEventSerializesFalseIsError(t *testing.T) {
	payload, err := json.Marshal(ToolResultEvent("tc1", OkResult("shell", "ok", nil)))
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	v, ok := decoded["is_error"]
	if !ok {
		t.Fatalf("tool_result event missing is_error key: %s", payload)
	}
	if v != false {
		t.Errorf("is_error = %v, want false", v)
	}
}

func TestCompleteEventSerializesNullToolCalls(t *testing.T) {
	payload, err := json.Marshal(CompleteEvent("done", nil, TokenUsage{}))
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	v, ok := decoded["tool_calls"]
	if !ok {
		t.Fatalf("complete event missing tool_calls key: %s", payload)
	}
	if v != nil {
		t.Errorf("tool_calls = %v, want null for a turn with no tool calls", v)
	}
}

func TestErrorEventPayloadKeys(t *testing.T) {
	payload, err := json.Marshal(ErrorEvent(ErrCodeCancelled, "cancelled by user"))
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if decoded["type"] != "error" || decoded["code"] != ErrCodeCancelled || decoded["message"] != "cancelled by user" {
		t.Errorf("error event payload = %s", payload)
	}
	if _, ok := decoded["is_error"]; ok {
		t.Errorf("error event carries foreign keys: %s", payload)
	}
}

func TestErrorResultEnvelope(t *testing.T) {
	res := ErrorResult("grep", "invalid pattern")
	if res.Success {
		t.Errorf("Success = true for error result")
	}
	if res.Error != "invalid pattern" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Data == nil {
		t.Errorf("Data is nil; envelope requires a non-nil map")
	}
}

func TestReplyContentPrefersLLMContent(t *testing.T) {
	res := OkResult("read", "rendered text", nil)
	if got := res.ReplyContent(); got != "rendered text" {
		t.Errorf("ReplyContent() = %v, want text", got)
	}
	res.LLMContent = []LLMBlock{{Type: "text", Text: "inline"}}
	if _, ok := res.ReplyContent().([]any); !ok {
		t.Errorf("ReplyContent() did not return block list with LLMContent set")
	}
}
