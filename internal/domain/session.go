// Package domain contains entities without logic beyond validation and normalization.
package domain

import (
	"path"
	"strings"
)

// ViewerPrefix is the URL prefix under which model files are viewed.
const ViewerPrefix = "/viewers"

// SessionKey identifies one logical viewing session: the normalized resource
// path requested by the binary and text connections of a viewer.
type SessionKey string

// DefaultSessionKey is the key of the built-in cube session, used when no file
// is requested.
const DefaultSessionKey SessionKey = ViewerPrefix + "/"

// ParseSessionKey normalizes a request path into a SessionKey and the model
// file it refers to, relative to the model store. Empty, "." and ".." segments
// are dropped, so the result never escapes the store root. An empty file means
// the built-in cube.
func ParseSessionKey(p string) (SessionKey, string) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, ViewerPrefix)

	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, s := range parts {
		switch s {
		case "", ".", "..":
			continue
		}
		kept = append(kept, s)
	}
	file := strings.Join(kept, "/")
	if file == "" {
		return DefaultSessionKey, ""
	}
	return SessionKey(ViewerPrefix + "/" + file), file
}

// Ext returns the lower-case extension of file without the leading dot.
func Ext(file string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(file), "."))
}

// Stem returns the base name of file without its extension.
func Stem(file string) string {
	base := path.Base(file)
	return strings.TrimSuffix(base, path.Ext(base))
}
