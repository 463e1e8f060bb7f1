package gemini

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var dataURIPattern = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// ParseDataURI splits a data URI into its MIME type and decoded payload. A
// value that is not a data URI is taken as bare base64 with defaultMIME.
func ParseDataURI(s, defaultMIME string) (mimeType string, data []byte, err error) {
	mimeType, payload := defaultMIME, strings.TrimSpace(s)
	if m := dataURIPattern.FindStringSubmatch(payload); m != nil {
		mimeType, payload = m[1], m[2]
	}
	if payload == "" {
		return "", nil, fmt.Errorf("empty image payload")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image payload: %w", err)
	}
	return mimeType, data, nil
}

// FormatDataURI encodes data as a base64 data URI.
func FormatDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// WithAccessKey attaches the API key to a video download URI as the key
// query parameter.
func WithAccessKey(uri, apiKey string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse video uri: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
