// Package edgegrid signs HTTP requests with the Akamai EG1-HMAC-SHA256 scheme.
package edgegrid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/fastpurge-client/pkg/edgerc"
	"github.com/google/uuid"
)

// Scheme is the Authorization header scheme name.
const Scheme = "EG1-HMAC-SHA256"

// TimestampFormat is the layout of the signed timestamp.
const TimestampFormat = "20060102T15:04:05+0000"

// Signer adds EdgeGrid Authorization headers to requests.
type Signer struct {
	creds edgerc.Credentials

	// now and nonce are replaced in tests.
	now   func() time.Time
	nonce func() string
}

// NewSigner creates a signer for the given credentials.
func NewSigner(creds edgerc.Credentials) *Signer {
	return &Signer{
		creds: creds,
		now:   time.Now,
		nonce: func() string { return uuid.New().String() },
	}
}

// Sign sets the Authorization header on req. body must be the exact bytes
// sent as the request body (nil for requests without one).
func (s *Signer) Sign(req *http.Request, body []byte) {
	timestamp := s.now().UTC().Format(TimestampFormat)

	authHeader := fmt.Sprintf("%s client_token=%s;access_token=%s;timestamp=%s;nonce=%s;",
		Scheme, s.creds.ClientToken, s.creds.AccessToken, timestamp, s.nonce())

	signingKey := hmacBase64([]byte(s.creds.ClientSecret), timestamp)
	signature := hmacBase64([]byte(signingKey), s.dataToSign(req, body, authHeader))

	req.Header.Set("Authorization", authHeader+"signature="+signature)
}

func (s *Signer) dataToSign(req *http.Request, body []byte, authHeader string) string {
	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	return strings.Join([]string{
		req.Method,
		req.URL.Scheme,
		req.URL.Host,
		path,
		"", // no canonical headers are signed
		s.contentHash(req.Method, body),
		authHeader,
	}, "\t")
}

// contentHash hashes up to BodyLimit bytes of a POST body.
func (s *Signer) contentHash(method string, body []byte) string {
	if method != http.MethodPost || len(body) == 0 {
		return ""
	}
	if limit := s.creds.BodyLimit(); len(body) > limit {
		body = body[:limit]
	}
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func hmacBase64(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
