package adapter

import "testing"

func TestNormalizeSessionID(t *testing.T) {
	if got := NormalizeSessionID(""); got != nil {
		t.Errorf("NormalizeSessionID(\"\") = %v, want nil", got)
	}
	if got := NormalizeSessionID("abc"); got == nil || *got != "abc" {
		t.Errorf("NormalizeSessionID(\"abc\") = %v, want \"abc\"", got)
	}
}

func TestNormalizeTokenUsage_rejectsNegative(t *testing.T) {
	if got := NormalizeTokenUsage(-1, 2, 1, true); got != nil {
		t.Errorf("NormalizeTokenUsage with negative count = %v, want nil", got)
	}
	if got := NormalizeTokenUsage(1, 2, 3, false); got != nil {
		t.Errorf("NormalizeTokenUsage with ok=false = %v, want nil", got)
	}
}

func TestCodexAdapter_Parse_fallsBackToRawOutput(t *testing.T) {
	a := NewCodexAdapter()
	resp := a.Parse([]byte("plain text, no JSON here"), nil, 0)
	if resp.Output != "plain text, no JSON here" {
		t.Errorf("Output = %q, want raw capture", resp.Output)
	}
	if resp.SessionID != nil {
		t.Error("SessionID should be nil when no event was recognized")
	}
}

func TestCodexAdapter_Parse_recognizedEvent(t *testing.T) {
	a := NewCodexAdapter()
	stdout := []byte(`{"type":"message","session_id":"sess-1","message":"done","usage":{"input_tokens":10,"output_tokens":5}}` + "\n")
	resp := a.Parse(stdout, nil, 0)

	if resp.SessionID == nil || *resp.SessionID != "sess-1" {
		t.Errorf("SessionID = %v, want sess-1", resp.SessionID)
	}
	if resp.Output != "done" {
		t.Errorf("Output = %q, want %q", resp.Output, "done")
	}
	if resp.TokenUsage == nil || resp.TokenUsage.TotalTokens != 15 {
		t.Errorf("TokenUsage = %+v, want total 15", resp.TokenUsage)
	}
}

func TestClaudeCodeAdapter_Parse_assistantAndResult(t *testing.T) {
	a := NewClaudeCodeAdapter()
	lines := `{"type":"assistant","session_id":"s1","message":{"role":"assistant","content":[{"type":"text","text":"Hello "}]}}
{"type":"result","session_id":"s1","result":"World"}
`
	resp := a.Parse([]byte(lines), nil, 0)

	if resp.SessionID == nil || *resp.SessionID != "s1" {
		t.Errorf("SessionID = %v, want s1", resp.SessionID)
	}
	if resp.Output != "Hello World" {
		t.Errorf("Output = %q, want %q", resp.Output, "Hello World")
	}
}

func TestRegistry_unknownNameTruncated(t *testing.T) {
	reg := NewRegistry()
	longName := ""
	for i := 0; i < 100; i++ {
		longName += "x"
	}
	_, err := reg.Get(longName)
	if err == nil {
		t.Fatal("Get on unknown name should fail")
	}
	if len(err.Error()) > 200 {
		t.Errorf("error message too long, truncation not applied: %d bytes", len(err.Error()))
	}
}

func TestRegistry_exactMatchCaseSensitive(t *testing.T) {
	reg := DefaultRegistry()
	if _, err := reg.Get("Codex"); err == nil {
		t.Error("Get(\"Codex\") should fail: lookup is case-sensitive")
	}
	if _, err := reg.Get(" codex"); err == nil {
		t.Error("Get(\" codex\") should fail: lookup does not trim whitespace")
	}
	if _, err := reg.Get("codex"); err != nil {
		t.Errorf("Get(\"codex\") failed: %v", err)
	}
}
