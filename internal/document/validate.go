package document

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// MaxUploadBytes is the default per-file ceiling (50 MiB).
const MaxUploadBytes int64 = 50 << 20

// AllowedExtensions lists the accepted file types, lower-case without dot.
var AllowedExtensions = []string{"pdf", "jpg", "jpeg", "png", "zip", "doc", "docx", "xls", "xlsx"}

// ValidationError reports a rejected upload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// CheckFile validates name and size against the allow-list and ceiling.
func CheckFile(name string, size, max int64) error {
	if strings.TrimSpace(name) == "" {
		return invalid("file", "a file name is required")
	}
	ext := Extension(name)
	allowed := false
	for _, a := range AllowedExtensions {
		if a == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return invalid("file", "file type %q is not accepted (allowed: %s)",
			ext, strings.Join(AllowedExtensions, ", "))
	}
	if size <= 0 {
		return invalid("file", "file is empty")
	}
	if size > max {
		return invalid("file", "file is %d MiB, the limit is %d MiB", size>>20, max>>20)
	}
	return nil
}

// SanitizeName replaces every character outside [A-Za-z0-9._()+ -] with "_".
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("._()+ -", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}

// StoragePath builds the object key {owner}/{dossier}/{unix_ms}-{sanitized}.
func StoragePath(ownerID, dossierID string, unixMS int64, filename string) string {
	return fmt.Sprintf("%s/%s/%d-%s", ownerID, dossierID, unixMS, SanitizeName(filename))
}

// ContentType prefers the declared type and falls back to the extension.
func ContentType(declared, name string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mime.TypeByExtension("." + Extension(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
