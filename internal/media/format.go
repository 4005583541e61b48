// Package media decides what an uploaded filename is and whether it needs
// audio extraction before being relayed.
package media

import (
	"path/filepath"
	"slices"
	"strings"
)

type Class int

const (
	Rejected Class = iota
	// Audio is an accepted audio container.
	Audio
	// Video covers video and container formats that require extraction.
	Video
)

func (c Class) String() string {
	switch c {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return "rejected"
	}
}

// Format is the classification of a single filename.
type Format struct {
	Class Class
	// Ext is the lowercased extension without the dot.
	Ext string
}

// Accepted reports whether the upload may be processed at all.
func (f Format) Accepted() bool { return f.Class != Rejected }

// PassThrough is true when the file is already mp3 and is relayed as-is.
func (f Format) PassThrough() bool { return f.Class == Audio && f.Ext == "mp3" }

// acceptedExts is the allow-list in display order.
var acceptedExts = []string{"mp4", "mkv", "avi", "mov", "webm", "m4v", "mp3", "wav", "m4a"}

var videoExts = map[string]bool{
	"mp4": true, "mkv": true, "avi": true, "mov": true, "webm": true, "m4v": true,
}

// aac and flac are known audio but are not on the allow-list.
var audioExts = map[string]bool{
	"mp3": true, "wav": true, "m4a": true, "aac": true, "flac": true,
}

var allowed = func() map[string]bool {
	m := make(map[string]bool, len(acceptedExts))
	for _, e := range acceptedExts {
		m[e] = true
	}
	return m
}()

// Classify has no side effects.
func Classify(filename string) Format {
	ext := Extension(filename)
	if ext == "" || !allowed[ext] {
		return Format{Class: Rejected, Ext: ext}
	}
	switch {
	case audioExts[ext]:
		return Format{Class: Audio, Ext: ext}
	case videoExts[ext]:
		return Format{Class: Video, Ext: ext}
	}
	return Format{Class: Rejected, Ext: ext}
}

// Extension returns the lowercased extension after the last dot of the
// base name, or "" when there is none.
func Extension(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// AllowedExtensions lists the accepted extensions, used for the landing page
// and error messages.
func AllowedExtensions() []string {
	return slices.Clone(acceptedExts)
}
