package signing

import (
	"crypto/hmac"
	"crypto/sha256"
)

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// DeriveSigningKey runs the four-step HMAC-SHA256 chain that turns a secret
// access key into a date/region/service-scoped signing key.
func DeriveSigningKey(secretAccessKey, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretAccessKey), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

// Signature signs stringToSign with the derived signing key, hex-encoded.
func Signature(signingKey []byte, stringToSign string) string {
	return hexEncode(hmacSHA256(signingKey, stringToSign))
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
