// Package sniff detects file extensions from content. It is used only
// to name completed downloads whose requested file name has no
// extension.
package sniff

import "github.com/gabriel-vasile/mimetype"

// Extension detects an extension (including the leading dot) for the
// file at path. The second return is false when nothing usable was
// detected.
func Extension(path string) (string, bool) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", false
	}

	ext := mtype.Extension()
	return ext, ext != ""
}
