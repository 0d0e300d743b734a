package vision

import (
	"encoding/base64"
	"strings"
)

// encodeChunkSize must stay a multiple of 3 so that every chunk encodes
// without padding and the concatenated output equals a single-pass encoding.
const encodeChunkSize = 3 * 16 * 1024

// EncodeBase64 encodes data in fixed-size chunks into a single string.
func EncodeBase64(data []byte) string {
	return encodeChunked(data, encodeChunkSize)
}

func encodeChunked(data []byte, chunkSize int) string {
	if chunkSize <= 0 || chunkSize%3 != 0 {
		chunkSize = encodeChunkSize
	}
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))
	buf := make([]byte, base64.StdEncoding.EncodedLen(chunkSize))
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		n := base64.StdEncoding.EncodedLen(end - start)
		base64.StdEncoding.Encode(buf[:n], data[start:end])
		sb.Write(buf[:n])
	}
	return sb.String()
}

// DataURL builds an inline data URL for the image payload.
func DataURL(data []byte, contentType string) string {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + EncodeBase64(data)
}
