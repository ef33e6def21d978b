package aicontext

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrVideoNotSupported   = errors.New("video files are not supported")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyFile           = errors.New("file is empty")
)

type Kind int

const (
	KindDocument Kind = iota
	KindTabular
)

const (
	mimeCSV  = "text/csv"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePDF  = "application/pdf"
)

type fileType struct {
	kind Kind
	mime string
	// sniff, when set, must match the detected content type
	sniff string
}

var supported = map[string]fileType{
	".csv":  {kind: KindTabular, mime: mimeCSV},
	".xlsx": {kind: KindTabular, mime: mimeXLSX, sniff: mimeXLSX},
	".pdf":  {kind: KindDocument, mime: mimePDF, sniff: mimePDF},
	".txt":  {kind: KindDocument, mime: "text/plain"},
	".md":   {kind: KindDocument, mime: "text/md"},
	".json": {kind: KindDocument, mime: "application/json"},
	".html": {kind: KindDocument, mime: "text/html"},
	".htm":  {kind: KindDocument, mime: "text/html"},
}

var videoExt = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".wmv": true,
	".flv": true, ".m4v": true, ".mpeg": true, ".mpg": true, ".3gp": true,
}

// Classification is the validated type of an upload.
type Classification struct {
	Kind     Kind
	Ext      string
	MIMEType string
}

// Classify validates an upload by extension and sniffed content. Video is rejected even when it
// hides behind another extension.
func Classify(filename string, data []byte) (Classification, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if videoExt[ext] {
		return Classification{}, fmt.Errorf("%w: %s", ErrVideoNotSupported, ext)
	}
	if len(data) == 0 {
		return Classification{}, ErrEmptyFile
	}
	detected := mimetype.Detect(data)
	if strings.HasPrefix(detected.String(), "video/") {
		return Classification{}, fmt.Errorf("%w: %s", ErrVideoNotSupported, detected.String())
	}
	ft, ok := supported[ext]
	if !ok {
		return Classification{}, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	if ft.sniff != "" && !detected.Is(ft.sniff) {
		return Classification{}, fmt.Errorf("%w: %s content is %s", ErrUnsupportedFileType, ext, detected.String())
	}
	return Classification{Kind: ft.kind, Ext: ext, MIMEType: ft.mime}, nil
}

// IsValidationError reports whether err rejects the upload itself rather than a failure later on.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrVideoNotSupported) || errors.Is(err, ErrUnsupportedFileType) || errors.Is(err, ErrEmptyFile)
}
