package nvme

import (
	"errors"

	"github.com/plos-clan/go-nvme/internal/ctrl"
	"github.com/plos-clan/go-nvme/internal/mem"
	"github.com/plos-clan/go-nvme/internal/queue"
	"github.com/plos-clan/go-nvme/internal/ring"
)

// classifySentinel maps an internal package's sentinel/typed error into
// the public ErrorCode taxonomy, so callers only ever see *Error values
// regardless of which layer detected the problem.
func classifySentinel(err error) (ErrorCode, bool) {
	switch {
	case errors.Is(err, ring.ErrQueueFull):
		return ErrCodeQueueFull, true
	case errors.Is(err, mem.ErrNotAlignedToDword):
		return ErrCodeNotAlignedToDword, true
	case errors.Is(err, mem.ErrNotAlignedToPage):
		return ErrCodeNotAlignedToPage, true
	case errors.Is(err, queue.ErrIoSizeExceedsMdts):
		return ErrCodeIoSizeExceedsMdts, true
	case errors.Is(err, queue.ErrInvalidBufferSize):
		return ErrCodeInvalidBufferSize, true
	case errors.Is(err, ctrl.ErrQueueSizeTooSmall):
		return ErrCodeQueueSizeTooSmall, true
	case errors.Is(err, ctrl.ErrQueueSizeExceedsMqes):
		return ErrCodeQueueSizeExceedsMqes, true
	}

	var cmdErr *ctrl.CommandFailedError
	if errors.As(err, &cmdErr) {
		return ErrCodeCommandFailed, true
	}

	return "", false
}
