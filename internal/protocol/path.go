package protocol

import (
	"path"
	"strings"
)

// CleanPath turns a client-supplied path into the canonical, sandbox-relative
// key used by the access table. One leading separator is tolerated; anything
// that still looks rooted afterwards, or that contains a ".." segment, is
// rejected.
func CleanPath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return "", ErrInvalidFilePath
	}

	if p[0] == '/' || p[0] == '\\' {
		p = p[1:]
	}
	if p == "" || p[0] == '/' || p[0] == '\\' || hasVolumeName(p) {
		return "", ErrInvalidFilePath
	}

	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		if seg == ".." {
			return "", ErrInvalidFilePath
		}
	}

	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if cleaned == "." {
		return "", ErrInvalidFilePath
	}
	return cleaned, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// hasVolumeName catches Windows drive letters such as "C:".
func hasVolumeName(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
