package media

import (
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/zhuguadundan/videowhisper/errors"
)

// stderrPatterns maps fragments of yt-dlp stderr to failure kinds. Matching
// is case-insensitive and first match wins, so the more specific rejections
// come before the generic network ones.
var stderrPatterns = []struct {
	fragment string
	kind     string
}{
	{"no space left on device", errors.KindDiskFull},
	{"is not a valid url", errors.KindURLRejected},
	{"unsupported url", errors.KindURLRejected},
	{"http error 404", errors.KindNotFound},
	{"video unavailable", errors.KindNotFound},
	{"this video does not exist", errors.KindNotFound},
	{"content isn't available", errors.KindNotFound},
	{"not available in your country", errors.KindGeoBlocked},
	{"blocked it in your country", errors.KindGeoBlocked},
	{"geo restriction", errors.KindGeoBlocked},
	{"geo-restricted", errors.KindGeoBlocked},
	{"sign in to confirm", errors.KindAuthRequired},
	{"private video", errors.KindAuthRequired},
	{"members-only", errors.KindAuthRequired},
	{"login required", errors.KindAuthRequired},
	{"requires authentication", errors.KindAuthRequired},
	{"age-restricted", errors.KindAuthRequired},
	{"unable to download webpage", errors.KindNetwork},
	{"connection refused", errors.KindNetwork},
	{"connection reset", errors.KindNetwork},
	{"timed out", errors.KindNetwork},
	{"temporary failure in name resolution", errors.KindNetwork},
	{"network is unreachable", errors.KindNetwork},
}

// classifyToolFailure turns a yt-dlp exit error plus its stderr into a typed
// failure. Anything unrecognized counts as a network failure, the only safe
// retryable default for an external fetch tool.
func classifyToolFailure(err error, stderr, msg string) error {
	if stderrors.Is(err, exec.ErrNotFound) {
		return errors.E(errors.KindToolMissing, "yt-dlp is not installed or not on PATH", err)
	}
	if stderrors.Is(err, syscall.ENOSPC) {
		return errors.E(errors.KindDiskFull, "no disk space left while downloading", err)
	}
	kind := errors.KindNetwork
	lowered := strings.ToLower(stderr)
	for _, p := range stderrPatterns {
		if strings.Contains(lowered, p.fragment) {
			kind = p.kind
			break
		}
	}
	detail := err
	if trimmed := lastStderrLine(stderr); trimmed != "" {
		detail = fmt.Errorf("%w: %s", err, trimmed)
	}
	return errors.E(kind, msg, detail)
}

// lastStderrLine picks the final non-empty stderr line, which is where
// yt-dlp puts the actual ERROR summary.
func lastStderrLine(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
