package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const scheme = "IYZWSv2"

var ErrMissingCredentials = errors.New("gateway api key and secret key are required")

// Signer builds the Authorization header value for a single gateway call.
type Signer struct {
	apiKey string
	secret []byte
}

func NewSigner(apiKey, secret string) (*Signer, error) {
	if apiKey == "" || secret == "" {
		return nil, ErrMissingCredentials
	}
	return &Signer{apiKey: apiKey, secret: []byte(secret)}, nil
}

// Sign returns "IYZWSv2 <base64>" for the given nonce, request path and
// body. The nonce must also be sent in the nonce header of the same call.
func (s *Signer) Sign(nonce, path string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(nonce))
	mac.Write([]byte(path))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	params := "apiKey:" + s.apiKey + "&randomKey:" + nonce + "&signature:" + sig
	return scheme + " " + base64.StdEncoding.EncodeToString([]byte(params))
}
