package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// ErrBodyTooLarge is returned when a body (or its decompressed form) exceeds
// the configured limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// readLimited reads at most max bytes of r. It reports ErrBodyTooLarge when
// more data is available.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > max {
		return data, ErrBodyTooLarge
	}
	return data, nil
}

// decodeContent undoes the Content-Encoding chain (applied in listed order,
// so decoded in reverse).
func decodeContent(body []byte, contentEncoding string, max int64) ([]byte, error) {
	var codings []string
	for _, c := range strings.Split(contentEncoding, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" && c != "identity" {
			codings = append(codings, c)
		}
	}
	for i := len(codings) - 1; i >= 0; i-- {
		decoded, err := decodeOne(body, codings[i], max)
		if err != nil {
			return nil, fmt.Errorf("decoding %s body: %w", codings[i], err)
		}
		body = decoded
	}
	return body, nil
}

func decodeOne(body []byte, coding string, max int64) ([]byte, error) {
	switch coding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr, max)
	case "br":
		return readLimited(brotli.NewReader(bytes.NewReader(body)), max)
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr, max)
	case "deflate":
		// zlib-wrapped per the RFC, raw deflate from some servers.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			return readLimited(zr, max)
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return readLimited(fr, max)
	}
	return nil, fmt.Errorf("unsupported content-encoding %q", coding)
}

// toUTF8 decodes an HTML body to UTF-8 using, in order, a BOM, the
// Content-Type charset, a <meta> declaration and statistical detection. It
// reports whether the text was transcoded.
func toUTF8(body []byte, contentType string) (string, bool, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name != "utf-8" && utf8.Valid(body) {
		name = "utf-8"
	}
	if !certain && name == "windows-1252" {
		if guess, err := chardet.NewHtmlDetector().DetectBest(body); err == nil && guess.Confidence >= 50 {
			if e, n := charset.Lookup(guess.Charset); e != nil {
				enc, name = e, n
			}
		}
	}
	if name == "utf-8" || enc == nil {
		return string(body), false, nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false, fmt.Errorf("transcoding %s body: %w", name, err)
	}
	return string(decoded), true, nil
}

// withUTF8Charset rewrites a Content-Type value to declare utf-8.
func withUTF8Charset(contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "text/html; charset=utf-8"
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mediaType, params)
}
