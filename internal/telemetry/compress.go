package telemetry

import (
	"compress/gzip"
	"io"
)

// gzipCopy writes a standard RFC 1952 gzip stream of src's contents to
// dst. compress/gzip is the stdlib package every example repo in the
// corpus reaches for when it needs gzip — no repo wraps it with a
// third-party codec — so this is the one deliberate, justified stdlib
// choice in the compression path (see DESIGN.md).
func gzipCopy(dst io.Writer, src io.Reader) error {
	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// gunzipReader wraps a file's contents in a gzip reader for transparent
// decompression during streaming queries.
func gunzipReader(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}
