package bytestream

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/dselans/beampatch/patcherr"
)

// InflateZlib decompresses a zlib stream fully into memory.
func InflateZlib(data []byte) ([]byte, *patcherr.Error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "init zlib reader")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "inflate zlib stream")
	}
	return out, nil
}

// DeflateZlib compresses data with the default zlib compression level.
func DeflateZlib(data []byte) ([]byte, *patcherr.Error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "deflate zlib stream")
	}
	if err := w.Close(); err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "close zlib writer")
	}
	return buf.Bytes(), nil
}

// InflateGzip decompresses a gzip stream fully into memory.
func InflateGzip(data []byte) ([]byte, *patcherr.Error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "init gzip reader")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "inflate gzip stream")
	}
	return out, nil
}

// DeflateGzip compresses data with the default gzip compression level.
func DeflateGzip(data []byte) ([]byte, *patcherr.Error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "deflate gzip stream")
	}
	if err := w.Close(); err != nil {
		return nil, patcherr.Wrap(patcherr.Decompression, err, "close gzip writer")
	}
	return buf.Bytes(), nil
}
