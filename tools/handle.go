package tools

import (
	"context"

	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
)

// Handle tracks one asynchronous Init or Execute call.
type Handle struct {
	done    chan struct{}
	err     error
	cancel  context.CancelFunc
	tracker *utils.ProgressTracker
}

func newHandle(cancel context.CancelFunc, name string, log logrus.FieldLogger) *Handle {
	return &Handle{
		done:    make(chan struct{}),
		cancel:  cancel,
		tracker: utils.NewProgressTracker(0, name, log),
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Wait blocks until the call completes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done is closed when the call completes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops dispatching new jobs. Jobs already running finish.
func (h *Handle) Cancel() {
	h.cancel()
}

// Progress returns the processed and total job counts and the percentage.
func (h *Handle) Progress() (processed, total int64, percent float64) {
	return h.tracker.GetProgress()
}
