package textExtract

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/lu4p/cat"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
)

var textFamilyExtensions = map[string]string{
	"text/plain":      ".txt",
	"application/rtf": ".rtf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// extractTextFamily handles txt/rtf/docx via cat. The library dispatches on
// file extension, so the bytes go through a temp file named for the mime
// type.
func extractTextFamily(data []byte, mimeType string) (string, error) {
	ext := textFamilyExtensions[mimeType]
	path := filepath.Join(os.TempDir(), uuid.New().String()+ext)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", faults.Unavailable("document extraction", err)
	}
	defer os.Remove(path)

	text, err := cat.File(path)
	if err != nil {
		return "", faults.Unavailable("document extraction", err)
	}
	return text, nil
}
