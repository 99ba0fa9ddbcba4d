package recordModel

import (
	"context"
	"time"
)

type RecordStatus string

const (
	StatusUploaded   RecordStatus = "uploaded"
	StatusProcessing RecordStatus = "processing"
	StatusProcessed  RecordStatus = "processed"
	StatusFailed     RecordStatus = "failed"
)

// Record is one uploaded document. Mutated by the ingestion stage (create,
// storage ref) and the insight stage (status transitions); retrieval is
// read-only.
type Record struct {
	Id         string       `json:"id"`
	PatientId  string       `json:"patient_id"`
	UploadedBy string       `json:"uploaded_by"`
	Title      string       `json:"title"`
	MimeType   string       `json:"mime_type"`
	StorageRef string       `json:"storage_ref"`
	Status     RecordStatus `json:"status"`
	RetryCount int          `json:"retry_count"`
	ChunkCount int          `json:"chunk_count"`
	// NoContent is set when extraction yielded no text; the record is still
	// processed, it just has nothing searchable.
	NoContent   bool      `json:"no_content"`
	CreatedTime time.Time `json:"created_time"`
	UpdatedTime time.Time `json:"updated_time"`
}

type Patient struct {
	Id          string    `json:"id"`
	UserId      string    `json:"user_id"`
	MedicalId   string    `json:"medical_id"`
	FullName    string    `json:"full_name"`
	CreatedTime time.Time `json:"created_time"`
}

// AccessGrant lets a non-owning user (typically a doctor) read one record.
// Written by the authorization subsystem; read-only here.
type AccessGrant struct {
	Id          string     `json:"id"`
	RecordId    string     `json:"record_id"`
	UserId      string     `json:"user_id"`
	GrantedTime time.Time  `json:"granted_time"`
	ExpiresTime *time.Time `json:"expires_time,omitempty"`
}

// AuditEntry is append-only. Every state-changing or access-sensitive action
// writes one, including denied access attempts.
type AuditEntry struct {
	Id          string    `json:"id"`
	UserId      string    `json:"user_id"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	ResourceId  string    `json:"resource_id,omitempty"`
	CreatedTime time.Time `json:"created_time"`
}

// RecordStore is the metadata persistence the pipeline stages share.
type RecordStore interface {
	CreateRecord(ctx context.Context, record Record) error
	GetRecord(ctx context.Context, recordId string) (Record, error)
	GetRecords(ctx context.Context, recordIds []string) ([]Record, error)
	SetStorageRef(ctx context.Context, recordId string, storageRef string) error
	SetStatus(ctx context.Context, recordId string, status RecordStatus) error
	MarkProcessed(ctx context.Context, recordId string, chunkCount int, noContent bool) error
	MarkFailed(ctx context.Context, recordId string, retryCount int) error
	ResetRetries(ctx context.Context, recordId string) error
	DeleteRecord(ctx context.Context, recordId string) error

	PatientExists(ctx context.Context, patientId string) (bool, error)
	PatientByUser(ctx context.Context, userId string) (Patient, error)
}

// AccessStore exposes the per-role scope primitives the retrieval stage
// filters on. The role dispatch itself lives in the retrieval stage so a new
// role cannot silently fall through.
type AccessStore interface {
	RecordIdsOwnedByUser(ctx context.Context, userId string) ([]string, error)
	RecordIdsGrantedToUser(ctx context.Context, userId string) ([]string, error)
	AllRecordIds(ctx context.Context) ([]string, error)
	OwnsRecord(ctx context.Context, userId string, recordId string) (bool, error)
	HasGrant(ctx context.Context, userId string, recordId string) (bool, error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
}
