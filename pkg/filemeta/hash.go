package filemeta

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"os"
	"strings"
)

// URIHash identifies a session: the hex encoded SHA-256 of the URI bytes.
type URIHash string

// HashURI computes the URIHash of uri. Identical strings always hash identically.
func HashURI(uri string) URIHash {
	sum := sha256.Sum256([]byte(uri))
	return URIHash(hex.EncodeToString(sum[:]))
}

// CacheKey derives the cache entry key for an extractor's metadata of a file.
func CacheKey(extractorID string, hash URIHash) string {
	return "hash:" + extractorID + ":" + string(hash)
}

// sourcePath returns the local filesystem path to read for a store: the
// override path when set, otherwise the URI itself, with file:// URIs mapped
// to their path. URIs with any other scheme cannot be read locally.
func sourcePath(uri, localPath string) (string, error) {
	if localPath != "" {
		return checkFile(localPath)
	}
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", ErrSourceNotFound
		}
		return checkFile(u.Path)
	}
	if i := strings.Index(uri, "://"); i > 0 {
		return "", ErrSourceNotFound
	}
	return checkFile(uri)
}

func checkFile(path string) (string, error) {
	if path == "" {
		return "", ErrSourceNotFound
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return "", ErrSourceNotFound
		}
		return "", err
	}
	if info.IsDir() {
		return "", ErrSourceNotFound
	}
	return path, nil
}

// writePath returns the path a store writes to. Unlike sourcePath the file
// need not exist yet.
func writePath(uri, localPath string) (string, error) {
	if localPath != "" {
		return localPath, nil
	}
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", err
		}
		return u.Path, nil
	}
	if i := strings.Index(uri, "://"); i > 0 || uri == "" {
		return "", ErrSourceNotFound
	}
	return uri, nil
}
