package media

import (
	"fmt"
	"os"
)

// writeCookieFile materializes cookie jar contents for yt-dlp. The file is
// created with 0600 permissions and the returned cleanup removes it as soon
// as the invocation finishes, success or not. Empty cookies yield no file.
func writeCookieFile(dir, cookies string) (string, func(), error) {
	if cookies == "" {
		return "", func() {}, nil
	}
	f, err := os.CreateTemp(dir, "cookies-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create cookie file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to restrict cookie file permissions: %w", err)
	}
	if _, err := f.WriteString(cookies); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close cookie file: %w", err)
	}
	return path, cleanup, nil
}
