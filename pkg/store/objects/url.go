package objects

import (
	"net/url"
	"strings"
)

const (
	storagePathPrefix = "/storage/v1/object/"
	publicPathPrefix  = storagePathPrefix + "public/"
)

// URLLayout maps object keys to public URLs of the form
//
//	<BaseURL>/storage/v1/object/public/<Bucket>/<key>
//
// and back.
type URLLayout struct {
	BaseURL string
	Bucket  string
}

// PublicURL returns the public URL of key.
func (l URLLayout) PublicURL(key string) string {
	return strings.TrimRight(l.BaseURL, "/") + publicPathPrefix + l.Bucket + "/" + strings.TrimLeft(key, "/")
}

// ObjectKey extracts the object key from a public URL. It returns false for
// URLs that do not point into the layout's bucket. Query strings and
// fragments are ignored.
func (l URLLayout) ObjectKey(rawURL string) (string, bool) {
	if rawURL == "" || l.Bucket == "" {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	idx := strings.Index(u.Path, storagePathPrefix)
	if idx < 0 {
		return "", false
	}

	// <access>/<bucket>/<key>
	_, rest, ok := strings.Cut(u.Path[idx+len(storagePathPrefix):], "/")
	if !ok {
		return "", false
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket != l.Bucket || key == "" {
		return "", false
	}
	return key, true
}
