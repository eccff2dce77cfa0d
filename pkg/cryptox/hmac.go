package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHex returns the lowercase hex HMAC-SHA256 of msg under secret.
func SignHex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHex reports whether sig is the HMAC-SHA256 of msg. The comparison is
// constant time. Hex case is not significant.
func VerifyHex(secret, msg, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hmac.Equal(mac.Sum(nil), want)
}
