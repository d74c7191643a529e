package proto

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// TestWireStructSizes pins the on-the-wire sizes of Command and
// Completion, the way dswarbrick/smart/nvme/nvme_test.go pins its
// passthrough struct sizes against unsafe.Sizeof.
func TestWireStructSizes(t *testing.T) {
	assert.Equal(t, uintptr(64), unsafe.Sizeof(Command{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(Completion{}))
}

func TestCommandRoundTrip(t *testing.T) {
	want := NewRead(1, 42, 0x1000, 7, 0xdeadbeef, 0)
	data := MarshalCommand(&want)
	if len(data) != 64 {
		t.Fatalf("marshaled length = %d, want 64", len(data))
	}

	var got Command
	if err := UnmarshalCommand(data, &got); err != nil {
		t.Fatalf("UnmarshalCommand: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestCompletionRoundTrip(t *testing.T) {
	want := Completion{CmdSpecific: 7, SQHead: 3, SQID: 1, CmdID: 42, Status: 0x0001}
	data := MarshalCompletion(&want)
	if len(data) != 16 {
		t.Fatalf("marshaled length = %d, want 16", len(data))
	}

	var got Completion
	if err := UnmarshalCompletion(data, &got); err != nil {
		t.Fatalf("UnmarshalCompletion: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestCompletionPhaseAndStatus(t *testing.T) {
	c := Completion{Status: 0x0203} // status field 0x101 (masked to 8 bits: 0x01), phase 1
	if !c.Phase() {
		t.Fatal("expected phase bit set")
	}
	if got := c.StatusCode(); got != 0x01 {
		t.Fatalf("StatusCode() = %#x, want 0x01", got)
	}
}

func TestUnmarshalCommandInsufficientData(t *testing.T) {
	var c Command
	err := UnmarshalCommand(make([]byte, 10), &c)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
