package blobStore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// DiskStore keeps blobs under a local directory, one file per reference, with
// a sidecar json holding the content type. Download URLs are HMAC-signed with
// an expiry so the file handler can verify them statelessly.
type DiskStore struct {
	dir     string
	baseURL string
	signKey []byte
	logger  *logger_i.Logger
}

type blobMeta struct {
	ContentType string `json:"content_type"`
}

func NewDiskStore(dir string, baseURL string, signKey string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	key := []byte(signKey)
	if len(key) == 0 {
		// Ephemeral key: previously signed URLs die with the process.
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	return &DiskStore{
		dir:     dir,
		baseURL: baseURL,
		signKey: key,
		logger:  logger_i.NewLogger("DiskBlobStore"),
	}, nil
}

func (s *DiskStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", faults.Unavailable("blob store", err)
	}
	ref := uuid.New().String()

	if err := os.WriteFile(s.blobPath(ref), data, 0640); err != nil {
		return "", faults.Unavailable("blob store", err)
	}
	meta, _ := json.Marshal(blobMeta{ContentType: contentType})
	if err := os.WriteFile(s.metaPath(ref), meta, 0640); err != nil {
		_ = os.Remove(s.blobPath(ref))
		return "", faults.Unavailable("blob store", err)
	}

	s.logger.Debug("stored blob", "ref", ref, "bytes", len(data))
	return ref, nil
}

func (s *DiskStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Unavailable("blob store", err)
	}
	data, err := os.ReadFile(s.blobPath(ref))
	if os.IsNotExist(err) {
		return nil, faults.NotFound("blob", ref)
	}
	if err != nil {
		return nil, faults.Unavailable("blob store", err)
	}
	return data, nil
}

// SignedURL returns baseURL/files/{ref}?exp=..&sig=.. where sig covers the
// reference and the expiry.
func (s *DiskStore) SignedURL(ref string, ttl time.Duration) (string, error) {
	if _, err := os.Stat(s.blobPath(ref)); err != nil {
		return "", faults.NotFound("blob", ref)
	}
	exp := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/files/%s?exp=%d&sig=%s", s.baseURL, ref, exp, s.sign(ref, exp)), nil
}

// Verify checks a signature produced by SignedURL. Used by the file handler.
func (s *DiskStore) Verify(ref string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(s.sign(ref, exp)), []byte(sig))
}

// ContentType returns the stored content type for a reference.
func (s *DiskStore) ContentType(ref string) (string, error) {
	raw, err := os.ReadFile(s.metaPath(ref))
	if err != nil {
		return "", faults.NotFound("blob", ref)
	}
	var meta blobMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", err
	}
	return meta.ContentType, nil
}

// Delete removes a blob and its sidecar. Missing blobs are not an error so
// record deletion stays idempotent.
func (s *DiskStore) Delete(ref string) error {
	if err := os.Remove(s.blobPath(ref)); err != nil && !os.IsNotExist(err) {
		return faults.Unavailable("blob store", err)
	}
	_ = os.Remove(s.metaPath(ref))
	return nil
}

func (s *DiskStore) sign(ref string, exp int64) string {
	mac := hmac.New(sha256.New, s.signKey)
	mac.Write([]byte(ref + ":" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *DiskStore) blobPath(ref string) string {
	return filepath.Join(s.dir, ref+".bin")
}

func (s *DiskStore) metaPath(ref string) string {
	return filepath.Join(s.dir, ref+".json")
}
