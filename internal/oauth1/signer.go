// Package oauth1 obtains OAuth 1.0a request tokens with HMAC-SHA1 signatures.
package oauth1

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is Twitter's request-token URL.
	DefaultEndpoint = "https://api.twitter.com/oauth/request_token"
	// DefaultCallbackURL is where the provider redirects after authorization.
	DefaultCallbackURL = "http://localhost:3000/api/oauth-twitter"

	signatureMethod = "HMAC-SHA1"
	version         = "1.0"
	nonceDigits     = 32
)

// Credentials are the consumer key pair of an application.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Signer builds and sends signed request-token calls. The zero value is not
// usable; create one with NewSigner.
type Signer struct {
	Endpoint    string
	CallbackURL string
	HTTPClient  *http.Client
	Now         func() time.Time
	Nonce       func() (string, error)
}

// NewSigner creates a signer for the default endpoint. An empty callbackURL
// uses DefaultCallbackURL.
func NewSigner(callbackURL string) *Signer {
	if callbackURL == "" {
		callbackURL = DefaultCallbackURL
	}
	return &Signer{
		Endpoint:    DefaultEndpoint,
		CallbackURL: callbackURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Now:         time.Now,
		Nonce:       DigitNonce,
	}
}

// RequestToken POSTs a signed request-token call and returns the decoded
// form response, e.g. oauth_token and oauth_token_secret. There is no retry.
func (s *Signer) RequestToken(ctx context.Context, creds Credentials) (map[string]string, error) {
	nonce, err := s.Nonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	params := map[string]string{
		"oauth_callback":         s.CallbackURL,
		"oauth_consumer_key":     creds.APIKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": signatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.Now().Unix(), 10),
		"oauth_version":          version,
	}
	signature := Sign(http.MethodPost, s.Endpoint, params, creds.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", AuthorizationHeader(params, signature))

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request token failed [%d]: %s", resp.StatusCode, string(body))
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	result := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result, nil
}

// Sign returns the base64 HMAC-SHA1 signature of a request. The key is the
// encoded consumer secret followed by "&"; there is no token secret.
func Sign(method, rawURL string, params map[string]string, consumerSecret string) string {
	mac := hmac.New(sha1.New, []byte(PercentEncode(consumerSecret)+"&"))
	mac.Write([]byte(BaseString(method, rawURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BaseString is METHOD&enc(url)&enc(sorted query).
func BaseString(method, rawURL string, params map[string]string) string {
	keys := sortedKeys(params)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + PercentEncode(params[k])
	}
	return strings.ToUpper(method) + "&" + PercentEncode(rawURL) + "&" + PercentEncode(strings.Join(pairs, "&"))
}

// AuthorizationHeader renders `OAuth k="v", ...` with the parameters sorted by
// name and the signature last.
func AuthorizationHeader(params map[string]string, signature string) string {
	keys := sortedKeys(params)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+`="`+PercentEncode(params[k])+`"`)
	}
	parts = append(parts, `oauth_signature="`+PercentEncode(signature)+`"`)
	return "OAuth " + strings.Join(parts, ", ")
}

// PercentEncode escapes everything outside the RFC 3986 unreserved set.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// DigitNonce returns 32 random decimal digits.
func DigitNonce() (string, error) {
	var b strings.Builder
	b.Grow(nonceDigits)
	ten := big.NewInt(10)
	for i := 0; i < nonceDigits; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
