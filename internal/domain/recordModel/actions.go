package recordModel

// Audit actions. Every access-sensitive operation writes one of these,
// including denied attempts.
const (
	ActionUploadRecord    = "UPLOAD_RECORD"
	ActionProcessRecord   = "PROCESS_RECORD"
	ActionReprocessRecord = "REPROCESS_RECORD"
	ActionRetryExhausted  = "RETRY_EXHAUSTED"
	ActionSemanticSearch  = "SEMANTIC_SEARCH"
	ActionAskQuestion     = "ASK_QUESTION"
	ActionAccessDenied    = "ACCESS_DENIED"
	ActionRecordURL       = "RECORD_URL"
	ActionDeleteRecord    = "DELETE_RECORD"
)
