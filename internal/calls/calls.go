package calls

// Class buckets a call for pipeline processing.
type Class string

const (
	// ClassNormal calls get the full fetch-transcribe-summarize treatment.
	ClassNormal Class = "normal"
	// ClassShort calls have no usable audio and skip straight to notification.
	ClassShort Class = "short"
)

// Job is an admitted call event on its way to the processing pipeline.
type Job struct {
	CallID       string
	FromNumber   string
	ToNumber     string
	Duration     int
	RecordingURL string
	Timestamp    string
	Status       string
}

// Classify buckets a job. Calls below minDuration seconds or without a
// recording URL have nothing to transcribe. Classification never fails.
func Classify(job Job, minDuration int) Class {
	if job.Duration < minDuration || job.RecordingURL == "" {
		return ClassShort
	}
	return ClassNormal
}
