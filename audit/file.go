package audit

import (
	"fmt"
	"os"
	"sync"

	"github.com/dselans/beampatch/patcherr"
)

// FileSink appends one tab-separated line per event to a log file. It is
// selected by audit type "file"; SQLSink and MongoSink are the other sink
// types.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if necessary) the audit log at path for
// appending.
func NewFileSink(path string) (*FileSink, *patcherr.Error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "opening audit log")
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Record(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "ok"
	if !e.Succeeded {
		status = "failed"
	}

	line := fmt.Sprintf("%s\t%s\t%s\t%s\n", e.AppliedAt.UTC().Format("2006-01-02T15:04:05Z"), e.Filename, status, e.Message)
	_, err := s.file.WriteString(line)
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
