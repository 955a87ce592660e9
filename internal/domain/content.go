package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// proofDocument is the raw JSON shape of an off-chain proof document.
// Submitters use several ad hoc layouts in the wild, so every media field
// has aliases and detection is performed by explicit ordered rules below.
type proofDocument struct {
	ImageURL    string         `json:"imageUrl"`
	Image       string         `json:"image"`
	PhotoURL    string         `json:"photoUrl"`
	VideoURL    string         `json:"videoUrl"`
	Video       string         `json:"video"`
	Text        string         `json:"text"`
	Description string         `json:"description"`
	Exif        *rawExif       `json:"exif"`
	Metadata    map[string]any `json:"metadata"`
}

type rawExif struct {
	Timestamp int64    `json:"timestamp"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Device    string   `json:"device"`
}

// DecodeProofContent decodes a raw proof document into a typed ProofContent.
// Shape detection applies these rules in order, first match wins:
//
//  1. A non-empty imageUrl, image, or photoUrl field makes it a photo.
//  2. A non-empty videoUrl or video field makes it a video.
//  3. A non-empty text or description field makes it a text proof.
//  4. Anything else is an error; callers treat it as unavailable content.
//
// The ordering is deliberate: documents that carry both media and text are
// media proofs with a caption, not text proofs.
func DecodeProofContent(raw []byte) (*ProofContent, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("proof document is empty")
	}

	var doc proofDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Plain-text proof bodies exist; treat any non-JSON payload as text.
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return nil, fmt.Errorf("proof document is not JSON and has no text: %w", err)
		}
		return &ProofContent{Type: ProofTypeText, Description: text}, nil
	}

	content := &ProofContent{
		Description: firstNonEmpty(doc.Description, doc.Text),
		Metadata:    doc.Metadata,
	}
	if doc.Exif != nil {
		content.Exif = decodeExif(doc.Exif)
	}

	switch {
	case firstNonEmpty(doc.ImageURL, doc.Image, doc.PhotoURL) != "":
		content.Type = ProofTypePhoto
		content.MediaURI = firstNonEmpty(doc.ImageURL, doc.Image, doc.PhotoURL)
	case firstNonEmpty(doc.VideoURL, doc.Video) != "":
		content.Type = ProofTypeVideo
		content.MediaURI = firstNonEmpty(doc.VideoURL, doc.Video)
	case content.Description != "":
		content.Type = ProofTypeText
	default:
		return nil, fmt.Errorf("proof document matches no known shape")
	}

	return content, nil
}

func decodeExif(raw *rawExif) *ExifData {
	exif := &ExifData{
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Device:    raw.Device,
	}
	if raw.Timestamp > 0 {
		exif.Timestamp = time.Unix(raw.Timestamp, 0).UTC()
	}
	return exif
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
