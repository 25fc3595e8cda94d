package conversation

import (
	"testing"

	"github.com/user/axiomos/internal/command"
	"github.com/user/axiomos/pkg/llm"
)

func TestStateIsImmutable(t *testing.T) {
	base := NewState(llm.Params{}).Advance(MemoryLoaded)
	a := base.WithSideEffect(SideEffect{Kind: "a"}).Advance(Done)
	b := base.WithSideEffect(SideEffect{Kind: "b"}).Advance(ImmediateReply)

	if len(base.SideEffects()) != 0 || len(base.Trail()) != 2 {
		t.Fatalf("base mutated: %+v %v", base.SideEffects(), base.Trail())
	}
	if a.SideEffects()[0].Kind != "a" || b.SideEffects()[0].Kind != "b" {
		t.Error("side effects aliased between derived states")
	}
	if a.Trail()[2] != Done || b.Trail()[2] != ImmediateReply {
		t.Error("trails aliased between derived states")
	}
}

func TestStateText(t *testing.T) {
	st := NewState(llm.Params{}).
		WithCommand(command.Match{Kind: command.Recall}).
		WithResponse("Answer.").
		WithAnnotation("Stored memories:\n- x")

	if st.Text() != "Answer.\n\nStored memories:\n- x" {
		t.Errorf("got %q", st.Text())
	}
	if st.WithAnnotation("").Annotation() != st.Annotation() {
		t.Error("empty annotation should be a no-op")
	}
}

func TestStageString(t *testing.T) {
	if Generating.String() != "generating" || Stage(99).String() != "unknown" {
		t.Error("unexpected stage names")
	}
}
