package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeProofContent_PhotoAliases verifies that every image field alias
// produces a photo proof and the first-match ordering holds.
func TestDecodeProofContent_PhotoAliases(t *testing.T) {
	for _, field := range []string{"imageUrl", "image", "photoUrl"} {
		raw := []byte(`{"` + field + `": "ipfs://QmPhoto", "description": "caption"}`)

		content, err := DecodeProofContent(raw)
		require.NoError(t, err, "field %s", field)

		assert.Equal(t, ProofTypePhoto, content.Type)
		assert.Equal(t, "ipfs://QmPhoto", content.MediaURI)
		assert.Equal(t, "caption", content.Description)
	}
}

// TestDecodeProofContent_MediaBeatsText verifies that a document carrying
// both media and text is classified as a media proof with a caption.
func TestDecodeProofContent_MediaBeatsText(t *testing.T) {
	raw := []byte(`{"videoUrl": "ipfs://QmVid", "text": "watch this"}`)

	content, err := DecodeProofContent(raw)
	require.NoError(t, err)

	assert.Equal(t, ProofTypeVideo, content.Type)
	assert.Equal(t, "ipfs://QmVid", content.MediaURI)
	assert.Equal(t, "watch this", content.Description)
}

// TestDecodeProofContent_TextOnly verifies text proofs via both JSON fields
// and a raw non-JSON body.
func TestDecodeProofContent_TextOnly(t *testing.T) {
	content, err := DecodeProofContent([]byte(`{"text": "done it"}`))
	require.NoError(t, err)
	assert.Equal(t, ProofTypeText, content.Type)
	assert.Empty(t, content.MediaURI)

	content, err = DecodeProofContent([]byte("plain narrative proof"))
	require.NoError(t, err)
	assert.Equal(t, ProofTypeText, content.Type)
	assert.Equal(t, "plain narrative proof", content.Description)
}

// TestDecodeProofContent_NoShape verifies that empty and shapeless documents
// return errors rather than fabricating content.
func TestDecodeProofContent_NoShape(t *testing.T) {
	_, err := DecodeProofContent(nil)
	assert.Error(t, err)

	_, err = DecodeProofContent([]byte(`{"unrelated": 42}`))
	assert.Error(t, err)

	_, err = DecodeProofContent([]byte("   "))
	assert.Error(t, err)
}

// TestDecodeProofContent_Exif verifies EXIF decoding including the pointer
// coordinates that keep 0,0 representable.
func TestDecodeProofContent_Exif(t *testing.T) {
	raw := []byte(`{
		"imageUrl": "https://example.com/p.jpg",
		"exif": {"timestamp": 1700000000, "latitude": 0, "longitude": 0, "device": "Pixel 9"}
	}`)

	content, err := DecodeProofContent(raw)
	require.NoError(t, err)
	require.NotNil(t, content.Exif)

	assert.True(t, content.Exif.HasGPS())
	assert.Equal(t, 0.0, *content.Exif.Latitude)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), content.Exif.Timestamp)
	assert.Equal(t, "Pixel 9", content.Exif.Device)
}

// TestExifData_HasGPS verifies nil-safety and the both-coordinates rule.
func TestExifData_HasGPS(t *testing.T) {
	var missing *ExifData
	assert.False(t, missing.HasGPS())

	lat := 51.5
	assert.False(t, (&ExifData{Latitude: &lat}).HasGPS())

	lon := -0.1
	assert.True(t, (&ExifData{Latitude: &lat, Longitude: &lon}).HasGPS())
}

// TestIntegrityTag verifies the tag is deterministic and input-sensitive.
func TestIntegrityTag(t *testing.T) {
	a := IntegrityTag("ipfs://x", "1", "2", "0xabc")
	b := IntegrityTag("ipfs://x", "1", "2", "0xabc")
	c := IntegrityTag("ipfs://y", "1", "2", "0xabc")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
