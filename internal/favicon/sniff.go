// Package favicon resolves site icons for feed pages: fetch the page,
// extract the icon link, sniff the bytes and publish the icon to every
// subscription sharing the page.
package favicon

import (
	"bytes"
	"net/http"
	"strings"
)

// IconType is the closed set of content types Sniff can report. The
// accepted/ignored/unknown split decides whether an icon is stored, the
// record is left for retry, or the record is deleted.
type IconType int

// Sniffed icon content types.
const (
	IconUnknown IconType = iota
	IconEmpty
	IconPNG
	IconICO
	IconGIF
	IconJPEG
	IconBMP
	// IconData is unrecognized binary, historically treated as an ICO.
	IconData
	IconHTML
	IconPhotoshop
	IconText
)

// Sniff detects the icon type from magic bytes. It is a pure function over
// the payload; http.DetectContentType breaks the tie between text, HTML and
// plain binary once no image signature matches.
func Sniff(data []byte) IconType {
	if len(data) == 0 {
		return IconEmpty
	}
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return IconPNG
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0x01, 0x00}):
		return IconICO
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return IconGIF
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return IconJPEG
	case bytes.HasPrefix(data, []byte("BM")):
		return IconBMP
	case bytes.HasPrefix(data, []byte("8BPS")):
		return IconPhotoshop
	}

	detected := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(detected, "text/html"), strings.HasPrefix(detected, "text/xml"):
		return IconHTML
	case strings.HasPrefix(detected, "text/plain"):
		return IconText
	case detected == "application/octet-stream":
		return IconData
	default:
		// Recognized as something else entirely (PDF, zip, audio, ...).
		return IconUnknown
	}
}

// Accepted reports whether the type may be stored as an icon.
func (t IconType) Accepted() bool {
	switch t {
	case IconPNG, IconICO, IconGIF, IconJPEG, IconBMP, IconData:
		return true
	}
	return false
}

// Ignored reports whether the fetch should be treated as absent: the record
// is left untouched and no icon is stored.
func (t IconType) Ignored() bool {
	switch t {
	case IconHTML, IconEmpty, IconPhotoshop, IconText:
		return true
	}
	return false
}

// Ext returns the file extension for accepted types, "" otherwise.
func (t IconType) Ext() string {
	switch t {
	case IconPNG:
		return "png"
	case IconICO, IconData:
		return "ico"
	case IconGIF:
		return "gif"
	case IconJPEG:
		return "jpg"
	case IconBMP:
		return "bmp"
	}
	return ""
}

// ContentType returns the MIME type stored alongside accepted icons.
func (t IconType) ContentType() string {
	switch t {
	case IconPNG:
		return "image/png"
	case IconICO, IconData:
		return "image/x-icon"
	case IconGIF:
		return "image/gif"
	case IconJPEG:
		return "image/jpeg"
	case IconBMP:
		return "image/bmp"
	}
	return ""
}

func (t IconType) String() string {
	switch t {
	case IconEmpty:
		return "empty"
	case IconPNG:
		return "png"
	case IconICO:
		return "ico"
	case IconGIF:
		return "gif"
	case IconJPEG:
		return "jpeg"
	case IconBMP:
		return "bmp"
	case IconData:
		return "data"
	case IconHTML:
		return "html"
	case IconPhotoshop:
		return "photoshop"
	case IconText:
		return "text"
	default:
		return "unknown"
	}
}
