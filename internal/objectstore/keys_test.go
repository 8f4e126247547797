package objectstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-ecosystems/rfp-agent/internal/objectstore"
)

func TestMakeTeamAssetKeySanitizesMemberID(t *testing.T) {
	key := objectstore.MakeTeamAssetKey("headshot", "photo.JPG", "jane doe!!")
	assert.True(t, strings.HasPrefix(key, "team/jane_doe__/headshot/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
}

func TestMakeTeamAssetKeyDefaultsUnassignedMember(t *testing.T) {
	key := objectstore.MakeTeamAssetKey("headshot", "", "")
	assert.True(t, strings.HasPrefix(key, "team/unassigned/headshot/"))
}

func TestMakeRFPUploadKeyDefaultsToPDFExtension(t *testing.T) {
	key := objectstore.MakeRFPUploadKey("scan.TXT")
	assert.True(t, strings.HasPrefix(key, "rfp/uploads/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
}

func TestMakeRFPUploadKeyForHashRejectsInvalidHash(t *testing.T) {
	_, err := objectstore.MakeRFPUploadKeyForHash("not-a-hash")
	assert.Error(t, err)
}

func TestMakeRFPUploadKeyForHashIsDeterministic(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	key1, err := objectstore.MakeRFPUploadKeyForHash(hash)
	require.NoError(t, err)
	key2, err := objectstore.MakeRFPUploadKeyForHash(strings.ToUpper(hash))
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
	assert.Equal(t, "rfp/uploads/sha256/"+hash+".pdf", key1)
}

func TestToS3URI(t *testing.T) {
	assert.Equal(t, "s3://assets/rfp/uploads/x.pdf", objectstore.ToS3URI("assets", "rfp/uploads/x.pdf"))
	assert.Equal(t, "", objectstore.ToS3URI("", "x"))
}
