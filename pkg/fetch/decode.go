package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodedBody wraps resp.Body with a decoder matching its Content-Encoding.
// The transport already handles gzip when it negotiated it itself (resp.Uncompressed).
// Closing the result never closes resp.Body.
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.Uncompressed {
		return io.NopCloser(resp.Body), nil
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "deflate":
		// Servers disagree on whether "deflate" carries a zlib header; peek to decide
		br := bufio.NewReader(resp.Body)
		header, err := br.Peek(2)
		if err == nil && isZlibHeader(header) {
			zr, zerr := zlib.NewReader(br)
			if zerr != nil {
				return nil, fmt.Errorf("deflate body: %w", zerr)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
