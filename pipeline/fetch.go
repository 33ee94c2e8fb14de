package pipeline

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"easybuild/errs"
	"easybuild/fsrun"
)

// Downloader retrieves srcURL into destPath. The default implementation
// uses net/http; tests inject a fake to avoid real network access,
// grounded on the teacher's environment.MockEnvironment substitution
// pattern (environment/mock.go).
type Downloader func(srcURL, destPath string) error

// HTTPDownload is the production Downloader.
func HTTPDownload(srcURL, destPath string) error {
	resp, err := http.Get(srcURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", srcURL, resp.Status)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

// Fetcher resolves a filename to local bytes by consulting, in order,
// the source cache, a fallback mirror, then each configured source URL
// (spec.md §4.6 FETCH contract).
type Fetcher struct {
	CacheDir      string
	MirrorBaseURL string
	Download      Downloader

	// ForceDownload skips cache hits (--force-download).
	ForceDownload bool
}

// Fetch locates filename, returning its local path. It never verifies
// checksums itself -- callers call fsrun.VerifyChecksum
// against the returned path so a FetchFailedError and a
// ChecksumMismatchError remain distinguishable failures.
func (f *Fetcher) Fetch(filename string, sourceURLs []string) (string, error) {
	cachePath := filepath.Join(f.CacheDir, filename)
	if !f.ForceDownload {
		if _, err := os.Stat(cachePath); err == nil {
			return cachePath, nil
		}
	}

	var tried []string
	download := f.Download
	if download == nil {
		download = HTTPDownload
	}

	if f.MirrorBaseURL != "" {
		url := f.MirrorBaseURL + "/" + filename
		tried = append(tried, url)
		if err := os.MkdirAll(f.CacheDir, 0755); err == nil {
			if err := download(url, cachePath); err == nil {
				return cachePath, nil
			}
		}
	}

	if err := os.MkdirAll(f.CacheDir, 0755); err != nil {
		return "", &errs.IOFailedError{Op: "mkdir", Path: f.CacheDir, Err: err}
	}
	for _, base := range sourceURLs {
		url := base + "/" + filename
		tried = append(tried, url)
		if err := download(url, cachePath); err == nil {
			return cachePath, nil
		}
	}

	return "", &errs.FetchFailedError{Filename: filename, Tried: tried}
}

// fetchAndVerify fetches a single source/patch entry and, when a
// checksum is declared, verifies it (spec.md §8 invariant 7). A missing
// checksum is fatal under EnforceChecksums, otherwise only a warning.
func (r *run) fetchAndVerify(st *StepContext, filename string, checksum string) (string, error) {
	path, err := r.opts.Fetcher.Fetch(filename, r.ec.SourceURLs)
	if err != nil {
		return "", err
	}
	if checksum == "" {
		if r.opts.EnforceChecksums {
			return "", &errs.MissingChecksumError{Path: path}
		}
		st.Progress.Warn("no checksum declared for %s", filename)
		return path, nil
	}
	algo := fsrun.SHA256
	if len(checksum) == 32 {
		algo = fsrun.MD5
	}
	if err := fsrun.VerifyChecksum(path, checksum, algo); err != nil {
		return "", err
	}
	return path, nil
}

// runFetch implements the FETCH step: resolve every source and patch,
// verifying checksums (spec.md §4.6).
func (r *run) runFetch(st *StepContext) ([]string, []string, error) {
	ec := r.ec

	var sourcePaths []string
	for i, src := range ec.Sources {
		checksum := ""
		if i < len(ec.Checksums) {
			checksum = ec.Checksums[i]
		}
		path, err := r.fetchAndVerify(st, src, checksum)
		if err != nil {
			return nil, nil, err
		}
		sourcePaths = append(sourcePaths, path)
	}

	var patchPaths []string
	for i, patch := range ec.Patches {
		checksum := ""
		idx := len(ec.Sources) + i
		if idx < len(ec.Checksums) {
			checksum = ec.Checksums[idx]
		}
		path, err := r.fetchAndVerify(st, patch.Name, checksum)
		if err != nil {
			return nil, nil, err
		}
		patchPaths = append(patchPaths, path)
	}

	return sourcePaths, patchPaths, nil
}
