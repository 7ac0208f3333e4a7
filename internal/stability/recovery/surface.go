package recovery

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vietddude/runguard/internal/core/domain"
)

// Surface replaces whatever the host shows with the terminal failure notice.
// Implementations must not depend on any component that may have failed.
type Surface interface {
	ShowTerminal(n domain.Notice)
}

// SurfaceFunc adapts a plain function to Surface.
type SurfaceFunc func(n domain.Notice)

// ShowTerminal calls f(n).
func (f SurfaceFunc) ShowTerminal(n domain.Notice) {
	f(n)
}

// WriterSurface renders the notice as plain text.
type WriterSurface struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSurface creates a text surface writing to w.
func NewWriterSurface(w io.Writer) *WriterSurface {
	return &WriterSurface{w: w}
}

// ShowTerminal implements Surface.
func (s *WriterSurface) ShowTerminal(n domain.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.w, "\n%s\n\n%s\n\n[ %s ]\n", n.Title, n.Message, n.Action)
	if n.IncidentID != "" {
		fmt.Fprintf(s.w, "incident: %s\n", n.IncidentID)
	}
}

// NewNotice builds the terminal notice for an exhausted recovery budget.
func NewNotice(state domain.RecoveryState) domain.Notice {
	return domain.Notice{
		Title: "Something went wrong",
		Message: fmt.Sprintf(
			"The application stopped after %d failed recovery attempts. Reload to start again.",
			state.RetryCount,
		),
		Action:     "Reload",
		IncidentID: state.IncidentID,
		Label:      state.LastLabel,
		OccurredAt: time.Now(),
	}
}
