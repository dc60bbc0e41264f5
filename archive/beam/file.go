package beam

import (
	"os"

	"github.com/dselans/beampatch/patcherr"
)

// Open reads and parses a BEAM carrier from disk.
func Open(path string) (*Archive, *patcherr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "reading beam file")
	}
	return OpenBytes(data)
}

// Save serializes the archive and writes it to path.
func (a *Archive) Save(path string) *patcherr.Error {
	data, err := a.Bytes()
	if err != nil {
		return err
	}
	if e := os.WriteFile(path, data, 0o644); e != nil {
		return patcherr.Wrap(patcherr.Io, e, "writing beam file")
	}
	return nil
}
