// Package upload validates user-supplied image files and stores them.
//
// Two backends implement Store: LocalStore writes to a directory served by
// the app itself, S3Store puts objects in an S3-compatible bucket. Both key
// files by the sanitised original filename, so a second upload with the
// same name replaces the first.
package upload

import (
	"path"
	"regexp"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/text/unicode/norm"
)

// AllowedExtensions lists the image extensions accepted for upload,
// compared case-insensitively and without the dot.
var AllowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// AllowedImage reports whether name ends in one of AllowedExtensions.
// "photo.JPG" is allowed; "photo.EXE", "jpg" and "photo." are not.
func AllowedImage(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return false
	}
	return AllowedExtensions[strings.ToLower(name[i+1:])]
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an untrusted filename to something safe to use as
// a single path element.
//
// STEPS:
//  1. NFKD-decompose and drop every non-ASCII byte ("café" -> "cafe").
//  2. Turn both kinds of path separator into spaces, so "../../etc/passwd"
//     cannot climb out of the upload directory.
//  3. Collapse whitespace runs into "_" and drop anything outside
//     [A-Za-z0-9_.-].
//  4. Trim leading and trailing dots and underscores, which removes ".."
//     and hidden-file names.
//
// The result may be empty; callers must treat that as an invalid name.
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	for i := 0; i < len(decomposed); i++ {
		if c := decomposed[i]; c < 0x80 {
			b.WriteByte(c)
		}
	}

	s := strings.NewReplacer("/", " ", `\`, " ").Replace(b.String())
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

// CleanImageName validates and sanitises an uploaded filename in one step.
// ok is false only when the original name has a disallowed extension. A
// name that sanitises to nothing usable, such as one written entirely in
// non-Latin script, gets a generated stem and keeps its extension.
func CleanImageName(original string) (name string, ok bool) {
	if !AllowedImage(original) {
		return "", false
	}
	name = SecureFilename(original)
	if name == "" || !AllowedImage(name) || path.Base(name) != name {
		ext := strings.ToLower(original[strings.LastIndexByte(original, '.')+1:])
		name = xid.New().String() + "." + ext
	}
	return name, true
}
