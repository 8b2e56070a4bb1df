package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// tokenInfo is the HKDF info label for webhook tokens.
const tokenInfo = "code-pipeline-helper/webhook-secret-token"

// DeriveToken returns the webhook secret token for secret. The result is a
// deterministic, hex encoded HKDF-SHA256 output and must never be logged.
func DeriveToken(secret string) string {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenInfo))

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		// hkdf only fails once more than 255*HashLen bytes are requested
		panic(err)
	}

	return hex.EncodeToString(key)
}
