// File: internal/network/compression.go
package network

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers to reduce allocation overhead across the
// many small provider responses a collection run fetches.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	emptyReader = strings.NewReader("")
)

// decompressingTransport advertises br/gzip/deflate and decodes the body
// according to Content-Encoding before handing the response back.
type decompressingTransport struct {
	next http.RoundTripper
}

func newDecompressingTransport(next http.RoundTripper) *decompressingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decompressingTransport{next: next}
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// pooledBody closes the decoder, returns it to its pool and closes the
// original body.
type pooledBody struct {
	io.Reader
	original io.ReadCloser
	release  func()
	closer   io.Closer
}

func (b *pooledBody) Close() error {
	var errs []error
	if b.closer != nil {
		errs = append(errs, b.closer.Close())
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	errs = append(errs, b.original.Close())
	return errors.Join(errs...)
}

// decompressResponse wraps resp.Body for a single Content-Encoding layer.
// Providers never send stacked encodings in practice; anything unknown is an error.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
		return nil

	case "gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(resp.Body); err != nil {
			gzipReaderPool.Put(zr)
			if errors.Is(err, io.EOF) {
				// Empty gzip body (e.g. a HEAD response).
				resp.Body = &pooledBody{Reader: strings.NewReader(""), original: resp.Body}
				break
			}
			return fmt.Errorf("gzip initialization error: %w", err)
		}
		resp.Body = &pooledBody{
			Reader:   zr,
			original: resp.Body,
			closer:   zr,
			release: func() {
				_ = zr.Reset(emptyReader)
				gzipReaderPool.Put(zr)
			},
		}

	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(resp.Body); err != nil {
			brotliReaderPool.Put(br)
			return fmt.Errorf("brotli initialization error: %w", err)
		}
		resp.Body = &pooledBody{
			Reader:   br,
			original: resp.Body,
			release: func() {
				_ = br.Reset(emptyReader)
				brotliReaderPool.Put(br)
			},
		}

	case "deflate":
		fr := flate.NewReader(resp.Body)
		resp.Body = &pooledBody{Reader: fr, original: resp.Body, closer: fr}

	default:
		return fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
