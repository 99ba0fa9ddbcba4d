package metaStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Store holds all record metadata in a single SQLite database: patients,
// records, access grants and the append-only audit log. It backs the
// RecordStore, AccessStore and AuditStore interfaces.
type Store struct {
	db     *sql.DB
	path   string
	logger *logger_i.Logger
}

// NewStore opens (or creates) the metadata database under dataDir with WAL
// mode for concurrent readers.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "medvault.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: logger_i.NewLogger("meta_store"),
	}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Timestamps are stored as unix nanoseconds so scans never depend on the
// driver's time parsing.
func (s *Store) bootstrap() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL UNIQUE,
	medical_id TEXT NOT NULL,
	full_name  TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	patient_id  TEXT NOT NULL REFERENCES patients(id),
	uploaded_by TEXT NOT NULL,
	title       TEXT NOT NULL,
	mime_type   TEXT NOT NULL,
	storage_ref TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	no_content  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_patient ON records(patient_id);
CREATE INDEX IF NOT EXISTS idx_records_uploader ON records(uploaded_by);

CREATE TABLE IF NOT EXISTS access_grants (
	id         TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	granted_at INTEGER NOT NULL,
	expires_at INTEGER,
	UNIQUE(record_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_grants_user ON access_grants(user_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
`

// ==================== RecordStore ====================

func (s *Store) CreateRecord(ctx context.Context, record recordModel.Record) error {
	now := time.Now().UTC()
	if record.CreatedTime.IsZero() {
		record.CreatedTime = now
	}
	record.UpdatedTime = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records
			(id, patient_id, uploaded_by, title, mime_type, storage_ref, status,
			 retry_count, chunk_count, no_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.Id, record.PatientId, record.UploadedBy, record.Title, record.MimeType,
		record.StorageRef, string(record.Status), record.RetryCount, record.ChunkCount,
		boolToInt(record.NoContent), record.CreatedTime.UnixNano(), record.UpdatedTime.UnixNano())
	if err != nil {
		return fmt.Errorf("creating record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, recordId string) (recordModel.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient_id, uploaded_by, title, mime_type, storage_ref, status,
		       retry_count, chunk_count, no_content, created_at, updated_at
		FROM records WHERE id = ?
	`, recordId)

	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return recordModel.Record{}, faults.NotFound("record", recordId)
	}
	return record, err
}

func (s *Store) GetRecords(ctx context.Context, recordIds []string) ([]recordModel.Record, error) {
	if len(recordIds) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(recordIds))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(recordIds))
	for i, id := range recordIds {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, uploaded_by, title, mime_type, storage_ref, status,
		       retry_count, chunk_count, no_content, created_at, updated_at
		FROM records WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []recordModel.Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func (s *Store) SetStorageRef(ctx context.Context, recordId string, storageRef string) error {
	return s.updateRecord(ctx, recordId,
		"UPDATE records SET storage_ref = ?, updated_at = ? WHERE id = ?",
		storageRef, time.Now().UTC().UnixNano(), recordId)
}

func (s *Store) SetStatus(ctx context.Context, recordId string, status recordModel.RecordStatus) error {
	return s.updateRecord(ctx, recordId,
		"UPDATE records SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC().UnixNano(), recordId)
}

func (s *Store) MarkProcessed(ctx context.Context, recordId string, chunkCount int, noContent bool) error {
	return s.updateRecord(ctx, recordId, `
		UPDATE records SET status = ?, chunk_count = ?, no_content = ?, retry_count = 0, updated_at = ?
		WHERE id = ?`,
		string(recordModel.StatusProcessed), chunkCount, boolToInt(noContent),
		time.Now().UTC().UnixNano(), recordId)
}

func (s *Store) MarkFailed(ctx context.Context, recordId string, retryCount int) error {
	return s.updateRecord(ctx, recordId,
		"UPDATE records SET status = ?, retry_count = ?, updated_at = ? WHERE id = ?",
		string(recordModel.StatusFailed), retryCount, time.Now().UTC().UnixNano(), recordId)
}

func (s *Store) ResetRetries(ctx context.Context, recordId string) error {
	return s.updateRecord(ctx, recordId,
		"UPDATE records SET retry_count = 0, updated_at = ? WHERE id = ?",
		time.Now().UTC().UnixNano(), recordId)
}

func (s *Store) DeleteRecord(ctx context.Context, recordId string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", recordId)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if affected == 0 {
		return faults.NotFound("record", recordId)
	}
	return nil
}

func (s *Store) updateRecord(ctx context.Context, recordId string, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	if affected == 0 {
		return faults.NotFound("record", recordId)
	}
	return nil
}

// ==================== Patients ====================

func (s *Store) CreatePatient(ctx context.Context, patient recordModel.Patient) error {
	if patient.CreatedTime.IsZero() {
		patient.CreatedTime = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, user_id, medical_id, full_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, patient.Id, patient.UserId, patient.MedicalId, patient.FullName, patient.CreatedTime.UnixNano())
	if err != nil {
		return fmt.Errorf("creating patient: %w", err)
	}
	return nil
}

func (s *Store) PatientExists(ctx context.Context, patientId string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM patients WHERE id = ?", patientId).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking patient: %w", err)
	}
	return count > 0, nil
}

func (s *Store) PatientByUser(ctx context.Context, userId string) (recordModel.Patient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, medical_id, full_name, created_at
		FROM patients WHERE user_id = ?
	`, userId)

	var patient recordModel.Patient
	var createdAt int64
	err := row.Scan(&patient.Id, &patient.UserId, &patient.MedicalId, &patient.FullName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return recordModel.Patient{}, faults.NotFound("patient", userId)
	}
	if err != nil {
		return recordModel.Patient{}, fmt.Errorf("scanning patient: %w", err)
	}
	patient.CreatedTime = time.Unix(0, createdAt).UTC()
	return patient, nil
}

// ==================== AccessStore ====================

// RecordIdsOwnedByUser returns the records a user owns directly: records of
// the patient profile linked to them plus records they uploaded themselves.
func (s *Store) RecordIdsOwnedByUser(ctx context.Context, userId string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id FROM records r
		LEFT JOIN patients p ON p.id = r.patient_id
		WHERE p.user_id = ? OR r.uploaded_by = ?
	`, userId, userId)
	if err != nil {
		return nil, fmt.Errorf("querying owned records: %w", err)
	}
	defer rows.Close()
	return scanIds(rows)
}

// RecordIdsGrantedToUser returns records shared with the user through grants
// that have not expired.
func (s *Store) RecordIdsGrantedToUser(ctx context.Context, userId string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id FROM access_grants
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, userId, time.Now().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("querying granted records: %w", err)
	}
	defer rows.Close()
	return scanIds(rows)
}

func (s *Store) AllRecordIds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM records")
	if err != nil {
		return nil, fmt.Errorf("querying record ids: %w", err)
	}
	defer rows.Close()
	return scanIds(rows)
}

func (s *Store) OwnsRecord(ctx context.Context, userId string, recordId string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records r
		LEFT JOIN patients p ON p.id = r.patient_id
		WHERE r.id = ? AND (p.user_id = ? OR r.uploaded_by = ?)
	`, recordId, userId, userId).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking ownership: %w", err)
	}
	return count > 0, nil
}

func (s *Store) HasGrant(ctx context.Context, userId string, recordId string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM access_grants
		WHERE record_id = ? AND user_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, recordId, userId, time.Now().UTC().UnixNano()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking grant: %w", err)
	}
	return count > 0, nil
}

// GrantAccess shares a record with a user. Re-granting refreshes the expiry.
func (s *Store) GrantAccess(ctx context.Context, grant recordModel.AccessGrant) error {
	if grant.GrantedTime.IsZero() {
		grant.GrantedTime = time.Now().UTC()
	}
	var expiresAt any
	if grant.ExpiresTime != nil {
		expiresAt = grant.ExpiresTime.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_grants (id, record_id, user_id, granted_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id, user_id) DO UPDATE SET
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at
	`, grant.Id, grant.RecordId, grant.UserId, grant.GrantedTime.UnixNano(), expiresAt)
	if err != nil {
		return fmt.Errorf("granting access: %w", err)
	}
	return nil
}

// RevokeAccess removes a grant. Revoking a grant that does not exist is a
// no-op.
func (s *Store) RevokeAccess(ctx context.Context, recordId string, userId string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM access_grants WHERE record_id = ? AND user_id = ?", recordId, userId)
	if err != nil {
		return fmt.Errorf("revoking access: %w", err)
	}
	return nil
}

// ==================== AuditStore ====================

func (s *Store) AppendAudit(ctx context.Context, entry recordModel.AuditEntry) error {
	if entry.CreatedTime.IsZero() {
		entry.CreatedTime = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, resource, resource_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Id, entry.UserId, entry.Action, entry.Resource, entry.ResourceId, entry.CreatedTime.UnixNano())
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the most recent entries for a user, newest first.
func (s *Store) AuditTrail(ctx context.Context, userId string, limit int) ([]recordModel.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource, resource_id, created_at
		FROM audit_log WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []recordModel.AuditEntry
	for rows.Next() {
		var entry recordModel.AuditEntry
		var createdAt int64
		if err := rows.Scan(&entry.Id, &entry.UserId, &entry.Action,
			&entry.Resource, &entry.ResourceId, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entry.CreatedTime = time.Unix(0, createdAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}

// ==================== Helpers ====================

func scanRecord(scan func(dest ...any) error) (recordModel.Record, error) {
	var record recordModel.Record
	var status string
	var noContent int
	var createdAt, updatedAt int64

	err := scan(&record.Id, &record.PatientId, &record.UploadedBy, &record.Title,
		&record.MimeType, &record.StorageRef, &status, &record.RetryCount,
		&record.ChunkCount, &noContent, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recordModel.Record{}, err
		}
		return recordModel.Record{}, fmt.Errorf("scanning record: %w", err)
	}

	record.Status = recordModel.RecordStatus(status)
	record.NoContent = noContent != 0
	record.CreatedTime = time.Unix(0, createdAt).UTC()
	record.UpdatedTime = time.Unix(0, updatedAt).UTC()
	return record, nil
}

func scanIds(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
