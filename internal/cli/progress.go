package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type stageProgressReporter struct {
	enabled bool
	out     io.Writer
	label   string
	start   time.Time
	spinner int
	stages  int
	lastLen int
}

// newStageProgressReporter reports on stderr when it is a terminal.
func newStageProgressReporter(label string, quiet bool) *stageProgressReporter {
	stat, err := os.Stderr.Stat()
	enabled := err == nil && (stat.Mode()&os.ModeCharDevice) != 0 && !quiet
	return &stageProgressReporter{
		enabled: enabled,
		out:     os.Stderr,
		label:   label,
		start:   time.Now(),
	}
}

func (r *stageProgressReporter) Stage(name string) {
	if !r.enabled {
		return
	}
	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++
	r.stages++
	r.printStatus(fmt.Sprintf("%s %s %s", frame, r.label, strings.TrimSpace(name)))
}

func (r *stageProgressReporter) Done() {
	if !r.enabled {
		return
	}
	elapsed := time.Since(r.start).Round(time.Millisecond)
	r.printStatus(fmt.Sprintf("%s complete (%d stages in %s)", r.label, r.stages, elapsed))
	fmt.Fprintln(r.out)
	r.stages = 0
	r.lastLen = 0
	r.start = time.Now()
}

func (r *stageProgressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(r.out, "\r%s", status)
}
