package constants

// JobStage is the canonical stage for rows in job_records.
type JobStage string

// Stable values (store these exact strings in the metadata sink).
const (
	StageRegistered    JobStage = "REGISTERED"     // job created, raw blob stored
	StageExtracting    JobStage = "EXTRACTING"     // text extraction in progress
	StageExtracted     JobStage = "EXTRACTED"      // extracted text persisted
	StageExtractFailed JobStage = "EXTRACT_FAILED" // extraction declined or errored; manual resubmission
	StageRedacting     JobStage = "REDACTING"      // PII redaction in progress
	StageRedacted      JobStage = "REDACTED"       // deidentified text persisted
	StageRedactFailed  JobStage = "REDACT_FAILED"  // redaction failed; resumable via Run
	StageEnriching     JobStage = "ENRICHING"      // entity extraction over redacted text
	StageDone          JobStage = "DONE"           // terminal success
)

// Failed reports whether the stage is a parked failure state.
func (s JobStage) Failed() bool {
	return s == StageExtractFailed || s == StageRedactFailed
}

// HasRedactedText reports whether the deidentified artifact exists for this stage.
func (s JobStage) HasRedactedText() bool {
	return s == StageRedacted || s == StageEnriching || s == StageDone
}
