package avatar

// Stage is a step of the upload pipeline. Stages are strictly ordered and a
// single upload never moves backwards through them.
type Stage int

const (
	StageValidation Stage = iota
	StageProcessing
	StageUploading
	StageUpdating
	StageSyncing
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageValidation:
		return "validation"
	case StageProcessing:
		return "processing"
	case StageUploading:
		return "uploading"
	case StageUpdating:
		return "updating"
	case StageSyncing:
		return "syncing"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ProgressEvent is delivered to progress observers.
//
// Progress is a percentage in [0, 100].
type ProgressEvent struct {
	Stage       Stage
	Progress    int
	Message     string
	CurrentFile string
}

// ProgressFunc observes progress events. A nil ProgressFunc is valid and
// discards every event.
type ProgressFunc func(ProgressEvent)

// UploadHooks is handed to the upload collaborator by the orchestrator.
//
// Progress receives the collaborator's own 0-100 progress; the orchestrator
// rescales it. Stored is invoked once for every object key written to
// storage, including keys written before a later failure.
type UploadHooks struct {
	Progress ProgressFunc
	Stored   func(key string)
}

// EmitProgress calls h.Progress when set.
func (h UploadHooks) EmitProgress(ev ProgressEvent) {
	if h.Progress != nil {
		h.Progress(ev)
	}
}

// RecordStored calls h.Stored when set.
func (h UploadHooks) RecordStored(key string) {
	if h.Stored != nil {
		h.Stored(key)
	}
}
