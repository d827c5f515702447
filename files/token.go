package files

import (
	"encoding/base64"
	"path"
	"strings"

	"github.com/zhuguadundan/videowhisper/errors"
)

// Roots a path token may address. The prefix travels inside the token so a
// token is self-describing and survives root reconfiguration.
const (
	rootOutput = "output"
	rootTemp   = "temp"
)

// EncodeToken builds the opaque token handed to clients for a file under one
// of the managed roots. rel is root-relative with forward slashes.
func EncodeToken(root, rel string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(root + ":" + rel))
}

// decodeToken reverses EncodeToken and rejects anything that could not have
// been produced by it. Containment against the actual root happens later in
// the manager; this only vets the token's shape.
func decodeToken(token string) (root, rel string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", errors.E(errors.KindBadRequest, "invalid file token", err)
	}
	root, rel, ok := strings.Cut(string(raw), ":")
	if !ok || (root != rootOutput && root != rootTemp) {
		return "", "", errors.E(errors.KindBadRequest, "invalid file token", nil)
	}
	if rel == "" || rel == "." || path.IsAbs(rel) {
		return "", "", errors.E(errors.KindPathEscape, "file token escapes storage root", nil)
	}
	return root, rel, nil
}
