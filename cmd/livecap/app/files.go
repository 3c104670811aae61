package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// outputLayout resolves all file paths under the output root.
//
// The staging tree (video/, audio/, subtitles/<lang>/) is shared with the
// transcoder; the serving tree is populated by the drip-feed with hard
// links so that transcoder retention cannot remove a file that is still
// inside the serving window.
type outputLayout struct {
	root string
}

func newOutputLayout(root string) *outputLayout {
	return &outputLayout{root: root}
}

func segmentFileName(seq uint64) string {
	return fmt.Sprintf("segment%d.ts", seq)
}

func vttFileName(seq uint64) string {
	return fmt.Sprintf("segment%d.vtt", seq)
}

func (l *outputLayout) videoDir() string { return filepath.Join(l.root, "video") }
func (l *outputLayout) audioDir() string { return filepath.Join(l.root, "audio") }

func (l *outputLayout) servingRoot() string {
	return filepath.Join(l.root, "serving")
}

func (l *outputLayout) subtitlesDir(lang string) string {
	return filepath.Join(l.root, "subtitles", lang)
}

func (l *outputLayout) videoPlaylist() string {
	return filepath.Join(l.videoDir(), "playlist.m3u8")
}

func (l *outputLayout) videoSegment(seq uint64) string {
	return filepath.Join(l.videoDir(), segmentFileName(seq))
}

func (l *outputLayout) audioSegment(seq uint64) string {
	return filepath.Join(l.audioDir(), segmentFileName(seq))
}

func (l *outputLayout) subtitleSegment(lang string, seq uint64) string {
	return filepath.Join(l.subtitlesDir(lang), vttFileName(seq))
}

func (l *outputLayout) subtitlePlaylist(lang string) string {
	return filepath.Join(l.subtitlesDir(lang), "playlist.m3u8")
}

func (l *outputLayout) servingMaster() string {
	return filepath.Join(l.servingRoot(), "master.m3u8")
}

// stagingPath maps a URL-style relative path onto the staging tree.
func (l *outputLayout) stagingPath(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// servingPath maps a URL-style relative path onto the serving tree.
func (l *outputLayout) servingPath(rel string) string {
	return filepath.Join(l.servingRoot(), filepath.FromSlash(rel))
}

// mkDirs creates the directories owned by this process. The video and
// audio staging directories belong to the transcoder but are created here
// too so that polling can start before the transcoder does.
func (l *outputLayout) mkDirs(langs []string) error {
	dirs := []string{
		l.videoDir(),
		l.audioDir(),
		filepath.Join(l.servingRoot(), "video"),
		filepath.Join(l.servingRoot(), "audio"),
	}
	for _, lang := range langs {
		dirs = append(dirs, l.subtitlesDir(lang))
		dirs = append(dirs, filepath.Join(l.servingRoot(), "subtitles", lang))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// fileExists reports whether the path exists and is statable.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const (
	fileWriteAttempts   = 3
	fileWriteRetryDelay = 500 * time.Millisecond
)

// atomicWriteFile writes data so that readers never observe a partial file.
func atomicWriteFile(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0644)
}

// writeFileRetry writes atomically, retrying transient failures.
func writeFileRetry(log *slog.Logger, path string, data []byte, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = atomicWriteFile(path, data)
		if err == nil {
			return nil
		}
		log.Warn("file write failed, retrying", "path", path, "attempt", i+1, "err", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	log.Error("file write failed", "path", path, "attempts", attempts, "err", err)
	return fmt.Errorf("write %s after %d attempts: %w", path, attempts, err)
}

// linkOrCopy makes dst a hard link to src, falling back to an atomic copy
// on filesystems where linking fails. An existing dst is replaced.
func linkOrCopy(src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old %s: %w", dst, err)
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	return atomicWriteFile(dst, data)
}

// cleanRequestPath validates a URL path and returns it relative without a
// leading slash. Traversal outside the tree is rejected.
func cleanRequestPath(urlPath string) (string, error) {
	rel := strings.TrimPrefix(urlPath, "/")
	if rel == "" {
		return "", fmt.Errorf("empty path: %w", errNotFound)
	}
	clean := filepath.ToSlash(filepath.Clean(rel))
	if clean != rel || strings.HasPrefix(clean, "..") || strings.Contains(clean, "/../") {
		return "", fmt.Errorf("insecure path %q: %w", urlPath, errNotFound)
	}
	return clean, nil
}
