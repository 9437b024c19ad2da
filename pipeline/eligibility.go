package pipeline

import (
	"mime"
	"net/http"
	"strings"
)

var htmlMediaTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
}

// EligibleMeta is the part of the eligibility filter that needs no body: GET
// or POST, a 2xx status and an HTML content type.
func EligibleMeta(method string, status int, header http.Header) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodPost:
	default:
		return false
	}
	if status < 200 || status > 299 {
		return false
	}
	return IsHTML(header.Get("Content-Type"))
}

// Eligible reports whether a response should go through the interceptors.
func Eligible(method string, status int, header http.Header, body string) bool {
	return body != "" && EligibleMeta(method, status, header)
}

// IsHTML reports whether a Content-Type header value names an HTML document.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return htmlMediaTypes[strings.ToLower(mediaType)]
}
