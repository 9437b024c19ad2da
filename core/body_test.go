package core

import (
	"bytes"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<html><body><p>hello</p></body></html>`

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func brotlied(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeContent(t *testing.T) {
	var zlibBuf, flateBuf bytes.Buffer
	zw := zlib.NewWriter(&zlibBuf)
	_, _ = zw.Write([]byte(sample))
	require.NoError(t, zw.Close())
	fw, err := flate.NewWriter(&flateBuf, flate.DefaultCompression)
	require.NoError(t, err)
	_, _ = fw.Write([]byte(sample))
	require.NoError(t, fw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zstdBody := enc.EncodeAll([]byte(sample), nil)
	require.NoError(t, enc.Close())

	cases := map[string]struct {
		body     []byte
		encoding string
	}{
		"identity":     {[]byte(sample), ""},
		"explicit id":  {[]byte(sample), "identity"},
		"gzip":         {gzipped(t, []byte(sample)), "gzip"},
		"br":           {brotlied(t, []byte(sample)), "br"},
		"zstd":         {zstdBody, "zstd"},
		"deflate zlib": {zlibBuf.Bytes(), "deflate"},
		"deflate raw":  {flateBuf.Bytes(), "deflate"},
		"chained":      {brotlied(t, gzipped(t, []byte(sample))), "gzip, br"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := decodeContent(tc.body, tc.encoding, 1<<20)
			require.NoError(t, err)
			assert.Equal(t, sample, string(out))
		})
	}
}

func TestDecodeContentErrors(t *testing.T) {
	_, err := decodeContent([]byte(sample), "compress", 1<<20)
	assert.Error(t, err)

	_, err = decodeContent([]byte("not gzip"), "gzip", 1<<20)
	assert.Error(t, err)

	bomb := gzipped(t, bytes.Repeat([]byte("a"), 4096))
	_, err = decodeContent(bomb, "gzip", 1024)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(bytes.NewReader([]byte("12345")), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	data, err = readLimited(bytes.NewReader([]byte("123456")), 5)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
	assert.Len(t, data, 6)
}

func TestToUTF8(t *testing.T) {
	t.Run("utf-8 passes through", func(t *testing.T) {
		out, transcoded, err := toUTF8([]byte("<p>café</p>"), "text/html")
		require.NoError(t, err)
		assert.False(t, transcoded)
		assert.Equal(t, "<p>café</p>", out)
	})

	t.Run("header charset", func(t *testing.T) {
		out, transcoded, err := toUTF8([]byte("<p>caf\xe9</p>"), "text/html; charset=iso-8859-1")
		require.NoError(t, err)
		assert.True(t, transcoded)
		assert.Equal(t, "<p>café</p>", out)
	})

	t.Run("undeclared legacy bytes", func(t *testing.T) {
		body := []byte("<html><body><p>Le caf\xe9 est tr\xe8s bon, la cr\xe8me br\xfbl\xe9e aussi.</p></body></html>")
		out, transcoded, err := toUTF8(body, "text/html")
		require.NoError(t, err)
		assert.True(t, transcoded)
		assert.Contains(t, out, "<p>Le caf")
		assert.True(t, utf8.ValidString(out))
	})
}

func TestWithUTF8Charset(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", withUTF8Charset("text/html; charset=ISO-8859-1"))
	assert.Equal(t, "text/html; charset=utf-8", withUTF8Charset(";;"))
}
