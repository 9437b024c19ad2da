package transport

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Message is the request payload sent to a rewrite worker.
type Message struct {
	HTML     string `json:"html"`
	URL      string `json:"url"`
	CSPNonce string `json:"csp_nonce,omitempty"`
}

// EncodeMessage serializes m as JSON.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a request payload. html and url are required strings;
// csp_nonce may be absent, null or a string.
func DecodeMessage(payload []byte) (Message, error) {
	if !gjson.ValidBytes(payload) {
		return Message{}, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedFrame)
	}
	fields := gjson.GetManyBytes(payload, "html", "url", "csp_nonce")
	html, url, nonce := fields[0], fields[1], fields[2]

	if html.Type != gjson.String {
		return Message{}, fmt.Errorf("%w: html must be a string", ErrMalformedFrame)
	}
	if url.Type != gjson.String || url.Str == "" {
		return Message{}, fmt.Errorf("%w: url must be a non-empty string", ErrMalformedFrame)
	}
	switch nonce.Type {
	case gjson.Null, gjson.String:
	default:
		return Message{}, fmt.Errorf("%w: csp_nonce must be a string", ErrMalformedFrame)
	}

	return Message{HTML: html.Str, URL: url.Str, CSPNonce: nonce.Str}, nil
}
