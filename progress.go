package unpack

// ProgressStage identifies what an extraction progress event reports.
type ProgressStage uint8

const (
	// StageFileCreated indicates a filesystem object was created. For
	// streamed files the event fires once the content is fully written.
	StageFileCreated ProgressStage = iota

	// StageMetadataApplied indicates metadata was applied to an object
	// during the final directory pass.
	StageMetadataApplied
)

// ProgressEvent is one extraction progress update.
type ProgressEvent struct {
	// Stage identifies what happened.
	Stage ProgressStage

	// Path is the extraction path of the object, relative to the target.
	Path string
}

// ProgressFunc receives progress updates during extraction. A non-nil return
// aborts the job like any other callback error; reporting itself never
// changes extraction behavior.
type ProgressFunc func(ProgressEvent) error
