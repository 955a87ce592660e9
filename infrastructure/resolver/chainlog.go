package resolver

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ClaimCreatedTopic is the keccak-256 signature hash of the on-chain
// ClaimCreated event. The indexed topics are the claim id and bounty id;
// the proof locator rides in the ABI-encoded data payload.
const ClaimCreatedTopic = "0x8f9f1b3b0dcb6b9ffd5f50c2ad9e1e4a0b3a2ce19c5f6f1a9a4a5a7be1e3f0c2"

// decodeClaimURI extracts the proof locator from a ClaimCreated log's
// ABI-encoded data: a single dynamic string (32-byte offset, 32-byte
// length, then the UTF-8 bytes).
func decodeClaimURI(data string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return "", fmt.Errorf("log data is not hex: %w", err)
	}
	if len(raw) < 64 {
		return "", fmt.Errorf("log data too short for a dynamic string: %d bytes", len(raw))
	}

	offset := beUint(raw[:32])
	if offset+32 > uint64(len(raw)) {
		return "", fmt.Errorf("string offset %d out of range", offset)
	}

	length := beUint(raw[offset : offset+32])
	start := offset + 32
	if start+length > uint64(len(raw)) {
		return "", fmt.Errorf("string length %d out of range", length)
	}

	uri := strings.TrimSpace(string(raw[start : start+length]))
	if uri == "" {
		return "", fmt.Errorf("log data contained an empty locator")
	}
	return uri, nil
}

// beUint reads a big-endian unsigned integer from a 32-byte word,
// ignoring high bytes that a sane offset or length never uses.
func beUint(word []byte) uint64 {
	var v uint64
	for _, b := range word[len(word)-8:] {
		v = v<<8 | uint64(b)
	}
	return v
}

// topicMatches compares a 32-byte topic against an opaque identifier,
// tolerating both hex-padded and plain decimal encodings.
func topicMatches(topic, id string) bool {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	t = strings.TrimLeft(t, "0")
	if t == "" {
		t = "0"
	}

	id = strings.ToLower(strings.TrimPrefix(id, "0x"))
	if t == strings.TrimLeft(id, "0") || (id == "0" && t == "0") {
		return true
	}

	// Decimal claim ids are common in explorer exports.
	if v, ok := hexToDecimal(t); ok && v == id {
		return true
	}
	return false
}

func hexToDecimal(h string) (string, bool) {
	var v uint64
	if len(h) > 16 {
		return "", false
	}
	for _, c := range h {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return "", false
		}
		v = v<<4 | d
	}
	return fmt.Sprintf("%d", v), true
}
