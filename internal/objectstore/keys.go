package objectstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	extensionPattern  = regexp.MustCompile(`\.([a-zA-Z0-9]{1,10})$`)
	unsafeCharPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	sha256Pattern     = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

func safeMemberID(memberID string) string {
	safe := strings.TrimSpace(memberID)
	if safe == "" {
		safe = "unassigned"
	}
	safe = unsafeCharPattern.ReplaceAllString(safe, "_")
	if len(safe) > 80 {
		safe = safe[:80]
	}
	return safe
}

func fileExtension(fileName string) string {
	match := extensionPattern.FindStringSubmatch(strings.TrimSpace(fileName))
	if match == nil {
		return ""
	}
	return "." + strings.ToLower(match[1])
}

// MakeTeamAssetKey builds a key under team/<member>/<kind>/ for a team
// member's headshot or other personal asset, namespaced by member ID and
// carrying the original extension when present.
func MakeTeamAssetKey(kind, fileName, memberID string) string {
	return fmt.Sprintf("team/%s/%s/%s%s", safeMemberID(memberID), kind, uuid.NewString(), fileExtension(fileName))
}

// MakeRFPUploadKey builds a content-random key under rfp/uploads/ for a
// newly uploaded RFP document, preserving a .pdf extension when the
// original upload used one and defaulting to .pdf otherwise.
func MakeRFPUploadKey(fileName string) string {
	ext := ".pdf"
	if got := fileExtension(fileName); got == ".pdf" {
		ext = got
	}
	return fmt.Sprintf("rfp/uploads/%s%s", uuid.NewString(), ext)
}

// MakeRFPUploadKeyForHash builds a deterministic key under
// rfp/uploads/sha256/ from an RFP document's content hash, so re-uploading
// identical content converges on the same object and de-duplication across
// retries is trivial.
func MakeRFPUploadKeyForHash(sha256Hex string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(sha256Hex))
	if !sha256Pattern.MatchString(normalized) {
		return "", fmt.Errorf("objectstore: invalid sha256 %q", sha256Hex)
	}
	return fmt.Sprintf("rfp/uploads/sha256/%s.pdf", normalized), nil
}

// MakeContractingAssetKey builds a key under contracting/<case>/<kind>/ for
// a contracting case's supporting documents, budget exports, or signed
// packages.
func MakeContractingAssetKey(caseID, kind, fileName string) string {
	return fmt.Sprintf("contracting/%s/%s/%s%s", safeMemberID(caseID), kind, uuid.NewString(), fileExtension(fileName))
}

// ToS3URI renders a bucket/key pair as an s3:// URI, or "" if either is
// empty.
func ToS3URI(bucket, key string) string {
	bucket = strings.TrimSpace(bucket)
	key = strings.TrimSpace(key)
	if bucket == "" || key == "" {
		return ""
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
