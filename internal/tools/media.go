package tools

import (
	"encoding/base64"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// MediaKind classifies a file by extension.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Size caps for media returned by tools.
const (
	// MaxImageBytes caps images returned inline (10 MB).
	MaxImageBytes = 10 << 20

	// MaxAVBytes caps audio and video references (100 MB).
	MaxAVBytes = 100 << 20
)

var mediaExts = map[string]MediaKind{
	".png":  MediaImage,
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".gif":  MediaImage,
	".webp": MediaImage,
	".bmp":  MediaImage,
	".svg":  MediaImage,
	".mp4":  MediaVideo,
	".mov":  MediaVideo,
	".avi":  MediaVideo,
	".mkv":  MediaVideo,
	".webm": MediaVideo,
	".mp3":  MediaAudio,
	".wav":  MediaAudio,
	".ogg":  MediaAudio,
	".flac": MediaAudio,
	".m4a":  MediaAudio,
}

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

// IgnoredDirs is the common set of build and VCS directories skipped by
// traversal (glob, list, media scans).
var IgnoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// MediaKindFor returns the media classification for a path, if any.
func MediaKindFor(path string) (MediaKind, bool) {
	kind, ok := mediaExts[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// MimeFor returns the MIME type for a media path, defaulting to
// application/octet-stream.
func MimeFor(path string) string {
	if mime, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// DataURI encodes data as an inline data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// MediaScanner detects media files that appear in the workspace while a
// tool runs: snapshot before, diff after.
type MediaScanner struct {
	Workspace Workspace
}

// Snapshot returns the workspace-relative paths of all current media files,
// skipping the common ignore set.
func (s MediaScanner) Snapshot() map[string]bool {
	seen := make(map[string]bool)
	root, err := s.Workspace.realRoot()
	if err != nil {
		return seen
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if IgnoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := MediaKindFor(path); ok {
			seen[s.Workspace.Rel(path)] = true
		}
		return nil
	})
	return seen
}

// NewSince returns the relative paths of media files present now but absent
// from the earlier snapshot, in sorted order.
func (s MediaScanner) NewSince(before map[string]bool) []string {
	var fresh []string
	for rel := range s.Snapshot() {
		if !before[rel] {
			fresh = append(fresh, rel)
		}
	}
	sort.Strings(fresh)
	return fresh
}
