// Package mirror downloads patch files and patch lists from a prioritized
// set of HTTP mirrors, failing over to the next mirror on any error.
//
// Grounded on original_source/beam-core/src/downloader.rs: sort-by-priority,
// try each non-empty mirror in turn, return the last error if every mirror
// fails.
package mirror

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/mirror/health"
	"github.com/dselans/beampatch/patcherr"
)

const userAgent = "beampatch/1.0"

// Mirror is one candidate source for patch downloads. Priority is
// ascending: lower values are tried first. An empty URL means "skip".
type Mirror struct {
	Name     string
	URL      string
	Priority int
}

// PatchInfo describes one entry in the remote patch list.
type PatchInfo struct {
	Filename string
	Checksum string // lowercase hex SHA-256, empty if not specified
	Size     uint64 // 0 if not specified or unparsable
	HasSize  bool
}

// ProgressFunc is invoked after each chunk of a download, with the
// cumulative bytes downloaded and the total if known (0 otherwise).
type ProgressFunc func(downloaded, total uint64)

// Client performs patch-list fetches and mirror-failover downloads.
type Client struct {
	http            *http.Client
	verifyChecksums bool
	tracker         health.Tracker
}

var log = logrus.WithField("pkg", "mirror")

// NewClient builds a Client whose transport matches the source patcher's
// timeout policy: 30s connect, 300s total request, 60s TCP keepalive, 90s
// idle-connection pool timeout, 10 idle connections per host.
func NewClient(verifyChecksums bool) *Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   300 * time.Second,
		},
		verifyChecksums: verifyChecksums,
		tracker:         health.NewMemTracker(),
	}
}

// WithHealthTracker replaces the Client's mirror-health tracker (e.g. with
// a health.RedisTracker shared across a fleet of patcher processes). A
// tracker only ever reorders candidates, so this never affects whether a
// download can succeed, only which mirror is tried first.
func (c *Client) WithHealthTracker(t health.Tracker) *Client {
	c.tracker = t
	return c
}

// FetchPatchList GETs url, parses its body line-by-line, and returns the
// patches it describes in file order.
func (c *Client) FetchPatchList(ctx context.Context, url string) ([]PatchInfo, *patcherr.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.DownloadFailed, err, "building patch list request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.DownloadFailed, err, "fetching patch list")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, patcherr.New(patcherr.DownloadFailed, "failed to download patch list: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.DownloadFailed, err, "reading patch list body")
	}

	return parsePatchList(string(body)), nil
}

func parsePatchList(content string) []PatchInfo {
	var patches []PatchInfo

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		info := PatchInfo{Filename: fields[0]}
		if len(fields) > 1 {
			info.Checksum = fields[1]
		}
		if len(fields) > 2 {
			if size, err := strconv.ParseUint(fields[2], 10, 64); err == nil {
				info.Size = size
				info.HasSize = true
			}
		}

		patches = append(patches, info)
	}

	return patches
}

// Download fetches filename from the highest-priority mirror that
// succeeds, writing it to dest. Parent directories of dest are created as
// needed.
func (c *Client) Download(ctx context.Context, mirrors []Mirror, filename, dest string) *patcherr.Error {
	return c.download(ctx, mirrors, filename, dest, nil)
}

// DownloadWithProgress is Download, additionally invoking progress after
// every chunk written to dest.
func (c *Client) DownloadWithProgress(ctx context.Context, mirrors []Mirror, filename, dest string, progress ProgressFunc) *patcherr.Error {
	return c.download(ctx, mirrors, filename, dest, progress)
}

func (c *Client) download(ctx context.Context, mirrors []Mirror, filename, dest string, progress ProgressFunc) *patcherr.Error {
	sorted := make([]Mirror, len(mirrors))
	copy(sorted, mirrors)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		// Within a priority tier, push currently-unhealthy mirrors to the
		// back. This never changes which mirrors are eligible, only the
		// order they're tried in.
		return c.tracker != nil && !c.tracker.IsUnhealthy(sorted[i].Name) && c.tracker.IsUnhealthy(sorted[j].Name)
	})

	var lastErr *patcherr.Error
	attempted := false

	for _, m := range sorted {
		if m.URL == "" {
			log.WithFields(logrus.Fields{"mirror": m.Name}).Warn("skipping mirror with empty url")
			continue
		}

		attempted = true
		url := fmt.Sprintf("%s/%s", strings.TrimRight(m.URL, "/"), filename)
		log.WithFields(logrus.Fields{"mirror": m.Name, "url": url}).Info("attempting download")

		if err := c.downloadFromURL(ctx, url, dest, progress); err != nil {
			log.WithFields(logrus.Fields{"mirror": m.Name, "err": err}).Warn("mirror download failed")
			if c.tracker != nil {
				c.tracker.RecordFailure(m.Name)
			}
			lastErr = err
			continue
		}

		if c.tracker != nil {
			c.tracker.RecordSuccess(m.Name)
		}
		log.WithFields(logrus.Fields{"mirror": m.Name}).Info("download succeeded")
		return nil
	}

	if !attempted {
		return patcherr.New(patcherr.DownloadFailed, "all mirrors failed")
	}
	return lastErr
}

func (c *Client) downloadFromURL(ctx context.Context, url, dest string, progress ProgressFunc) *patcherr.Error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return patcherr.Wrap(patcherr.DownloadFailed, err, "building download request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return patcherr.Wrap(patcherr.DownloadFailed, err, "sending download request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return patcherr.New(patcherr.DownloadFailed, "HTTP error: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return patcherr.Wrap(patcherr.Io, err, "creating destination directory")
	}

	f, err := os.Create(dest)
	if err != nil {
		return patcherr.Wrap(patcherr.Io, err, "creating destination file")
	}
	defer f.Close()

	total := uint64(0)
	if resp.ContentLength > 0 {
		total = uint64(resp.ContentLength)
	}

	var downloaded uint64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return patcherr.Wrap(patcherr.Io, werr, "writing downloaded chunk")
			}
			downloaded += uint64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return patcherr.Wrap(patcherr.DownloadFailed, rerr, "reading download stream")
		}
	}

	if err := f.Sync(); err != nil {
		return patcherr.Wrap(patcherr.Io, err, "flushing downloaded file")
	}

	return nil
}

// VerifyChecksum computes the SHA-256 of the file at path and compares it
// to expected (lowercase hex). If verification is disabled, it always
// returns true without reading the file.
func (c *Client) VerifyChecksum(path, expected string) (bool, *patcherr.Error) {
	if !c.verifyChecksums {
		return true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, patcherr.Wrap(patcherr.Io, err, "opening file for checksum verification")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, patcherr.Wrap(patcherr.Io, err, "hashing file for checksum verification")
	}

	got := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(got, expected), nil
}
