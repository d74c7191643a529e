package nvme

import (
	"errors"
	"syscall"
	"testing"

	"github.com/plos-clan/go-nvme/internal/ctrl"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/queue"
	"github.com/plos-clan/go-nvme/internal/ring"
)

func TestStructuredError(t *testing.T) {
	err := NewError("Open", ErrCodeQueueSizeTooSmall, "queue depth must be at least 2")

	if err.Op != "Open" {
		t.Errorf("Expected Op=Open, got %s", err.Op)
	}
	if err.Code != ErrCodeQueueSizeTooSmall {
		t.Errorf("Expected Code=ErrCodeQueueSizeTooSmall, got %s", err.Code)
	}

	expected := "nvme: queue depth must be at least 2 (op=Open)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestQueueError(t *testing.T) {
	err := NewQueueError("Read", 3, ErrCodeCommandFailed, "status 0x2")

	if err.Queue != 3 {
		t.Errorf("Expected Queue=3, got %d", err.Queue)
	}
	if err.Code != ErrCodeCommandFailed {
		t.Errorf("Expected Code=ErrCodeCommandFailed, got %s", err.Code)
	}
}

func TestWrapErrorPassthrough(t *testing.T) {
	inner := NewQueueError("Read", 1, ErrCodeIoSizeExceedsMdts, "too big")
	err := WrapError("OpenIoQueuePair", inner)

	if err.Code != ErrCodeIoSizeExceedsMdts {
		t.Errorf("Expected Code=ErrCodeIoSizeExceedsMdts, got %s", err.Code)
	}
	if err.Op != "OpenIoQueuePair" {
		t.Errorf("Expected Op=OpenIoQueuePair, got %s", err.Op)
	}
}

func TestWrapErrorErrno(t *testing.T) {
	err := WrapError("Open", syscall.ENOMEM)

	if err.Code != ErrCodeAllocatorFailure {
		t.Errorf("Expected Code=ErrCodeAllocatorFailure, got %s", err.Code)
	}
	if err.Errno != syscall.ENOMEM {
		t.Errorf("Expected Errno=ENOMEM, got %v", err.Errno)
	}
	if !errors.Is(err, syscall.ENOMEM) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOMEM")
	}
}

func TestWrapErrorClassifiesSentinels(t *testing.T) {
	testCases := []struct {
		name     string
		inner    error
		expected ErrorCode
	}{
		{"queue full", ring.ErrQueueFull, ErrCodeQueueFull},
		{"not aligned to dword", mem.ErrNotAlignedToDword, ErrCodeNotAlignedToDword},
		{"not aligned to page", mem.ErrNotAlignedToPage, ErrCodeNotAlignedToPage},
		{"io size exceeds mdts", queue.ErrIoSizeExceedsMdts, ErrCodeIoSizeExceedsMdts},
		{"invalid buffer size", queue.ErrInvalidBufferSize, ErrCodeInvalidBufferSize},
		{"queue size too small", ctrl.ErrQueueSizeTooSmall, ErrCodeQueueSizeTooSmall},
		{"queue size exceeds mqes", ctrl.ErrQueueSizeExceedsMqes, ErrCodeQueueSizeExceedsMqes},
		{"command failed", &ctrl.CommandFailedError{Code: 0x2}, ErrCodeCommandFailed},
	}

	for _, tc := range testCases {
		err := WrapError("Op", tc.inner)
		if err.Code != tc.expected {
			t.Errorf("%s: expected Code=%s, got %s", tc.name, tc.expected, err.Code)
		}
	}
}

func TestErrorIs(t *testing.T) {
	a := NewError("Open", ErrCodeQueueSizeTooSmall, "msg a")
	b := NewError("Read", ErrCodeQueueSizeTooSmall, "msg b")
	c := NewError("Read", ErrCodeCommandFailed, "msg c")

	if !errors.Is(a, b) {
		t.Error("Expected errors with the same Code to satisfy errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("Expected errors with different Codes to not satisfy errors.Is")
	}
}

func TestIsCode(t *testing.T) {
	err := WrapError("Read", queue.ErrIoSizeExceedsMdts)

	if !IsCode(err, ErrCodeIoSizeExceedsMdts) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeCommandFailed) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeIoSizeExceedsMdts) {
		t.Error("IsCode should return false for nil error")
	}
}
