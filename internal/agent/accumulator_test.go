package agent

import (
	"testing"

	"github.com/loopkit/loopd/internal/provider"
)

func intp(v int) *int { return &v }

func TestAccumulatorNilIndexMeansZero(t *testing.T) {
	var acc accumulator
	acc.add(provider.ToolCallChunk{ID: "tc1", Name: "shell"})
	acc.add(provider.ToolCallChunk{Args: `{"command":"ls"}`})

	calls := acc.completed()
	if len(calls) != 1 {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].ID != "tc1" || calls[0].Args["command"] != "ls" {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestAccumulatorFillsGapsAndFiltersGhosts(t *testing.T) {
	var acc accumulator
	acc.add(provider.ToolCallChunk{Index: intp(1), ID: "tc-real", Name: "shell", Args: `{"command":"echo ok"}`})

	calls := acc.completed()
	if len(calls) != 1 {
		t.Fatalf("ghost at index 0 not filtered: %v", calls)
	}
	if calls[0].ID != "tc-real" || calls[0].Index != 0 {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestAccumulatorConcatenatesArgFragments(t *testing.T) {
	var acc accumulator
	acc.add(provider.ToolCallChunk{Index: intp(0), ID: "tc1", Name: "write"})
	acc.add(provider.ToolCallChunk{Index: intp(0), Args: `{"file_path":`})
	acc.add(provider.ToolCallChunk{Index: intp(0), Args: `"a.txt","content":"x"}`})

	calls := acc.completed()
	if len(calls) != 1 {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].Args["file_path"] != "a.txt" || calls[0].Args["content"] != "x" {
		t.Errorf("args = %v", calls[0].Args)
	}
}

func TestAccumulatorEmptyArgsFallBackToEmptyObject(t *testing.T) {
	var acc accumulator
	acc.add(provider.ToolCallChunk{Index: intp(0), ID: "tc1", Name: "list"})

	calls := acc.completed()
	if calls[0].Args == nil || len(calls[0].Args) != 0 {
		t.Errorf("args = %v", calls[0].Args)
	}
}

func TestAccumulatorNameCommitReportedOnce(t *testing.T) {
	var acc accumulator
	if !acc.add(provider.ToolCallChunk{Index: intp(0), Name: "shell"}) {
		t.Error("first name assignment not reported")
	}
	if acc.add(provider.ToolCallChunk{Index: intp(0), Name: "shell"}) {
		t.Error("repeated name reported as new")
	}
	if acc.add(provider.ToolCallChunk{Index: intp(0), Args: "{}"}) {
		t.Error("args fragment reported as name commit")
	}
}
