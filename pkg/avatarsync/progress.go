package avatarsync

import (
	"sync"

	"github.com/marmos91/avatarsync/pkg/avatar"
)

// Progress checkpoints of the orchestrated upload.
const (
	progressValidated   = 10
	progressUploadSpan  = 75
	progressSyncing     = 90
	progressComplete    = 100
	collaboratorMaxStep = avatar.StageUpdating
)

// progressReporter forwards events to the caller while keeping stages and
// percentages monotonic. Collaborator events arrive from several goroutines.
type progressReporter struct {
	fn avatar.ProgressFunc

	mu       sync.Mutex
	stage    avatar.Stage
	progress int
}

func newProgressReporter(fn avatar.ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (r *progressReporter) emit(stage avatar.Stage, progress int, message, file string) {
	if r == nil || r.fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stage = max(stage, r.stage)
	progress = min(max(progress, r.progress, 0), 100)
	r.stage = stage
	r.progress = progress

	r.fn(avatar.ProgressEvent{
		Stage:       stage,
		Progress:    progress,
		Message:     message,
		CurrentFile: file,
	})
}

// collaborator rescales an upload collaborator event into the
// progressValidated..progressValidated+progressUploadSpan band. The
// collaborator's own completion is reported as the end of updating; the
// orchestrator emits the real completion after syncing.
func (r *progressReporter) collaborator(ev avatar.ProgressEvent) {
	p := min(max(ev.Progress, 0), 100)
	stage := min(ev.Stage, collaboratorMaxStep)
	if stage < avatar.StageProcessing {
		stage = avatar.StageProcessing
	}
	r.emit(stage, progressValidated+p*progressUploadSpan/100, ev.Message, ev.CurrentFile)
}
