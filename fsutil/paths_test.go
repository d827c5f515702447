package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"github.com/zhuguadundan/videowhisper/errors"
)

func TestIsWithin(t *testing.T) {
	root := t.TempDir()

	require.True(t, IsWithin(root, root))
	require.True(t, IsWithin(root, filepath.Join(root, "a.txt")))
	require.True(t, IsWithin(root, filepath.Join(root, "sub", "deep", "a.txt")))

	require.False(t, IsWithin(root, filepath.Dir(root)))
	require.False(t, IsWithin(root, filepath.Join(root, "..", "b.txt")))
	require.False(t, IsWithin(root, "/etc/passwd"))

	// A sibling whose name shares the root's prefix must not pass.
	require.False(t, IsWithin(root, root+"2"))
}

func TestIsWithinSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	// The path looks contained but resolves outside the root.
	require.False(t, IsWithin(root, filepath.Join(link, "file.txt")))
	// Plain not-yet-existing paths under the root are fine.
	require.True(t, IsWithin(root, filepath.Join(root, "sub", "file.txt")))
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	p, err := SafeJoin(root, "task-1", "transcript.md")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "task-1", "transcript.md"), p)

	_, err = SafeJoin(root, "..", "escape.txt")
	require.Error(t, err)
	require.Equal(t, errors.KindPathEscape, errors.Kind(err))

	_, err = SafeJoin(root, "task-1", "..", "..", "escape.txt")
	require.Error(t, err)
	require.Equal(t, errors.KindPathEscape, errors.Kind(err))

	_, err = SafeJoin(root, `task\..\..\evil`)
	require.Error(t, err)
	require.Equal(t, errors.KindPathEscape, errors.Kind(err))

	// Absolute-looking parts are grafted under the root, not honored.
	p, err = SafeJoin(root, "/etc/passwd")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "etc", "passwd"), p)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "my_video_title_", SanitizeFilename("my/video:title?"))
	require.Equal(t, "a_b_c", SanitizeFilename("a\x00b\tc"))
	require.Equal(t, "spaced", SanitizeFilename("  spaced  "))
	require.Equal(t, "dots", SanitizeFilename("...dots..."))
	require.Equal(t, "untitled", SanitizeFilename(""))
	require.Equal(t, "untitled", SanitizeFilename(" ... "))
	require.Equal(t, "正常的中文标题", SanitizeFilename("正常的中文标题"))
}

func TestSanitizeFilenameTruncation(t *testing.T) {
	long := strings.Repeat("长标题", 100) // 900 bytes of UTF-8
	out := SanitizeFilename(long)
	require.LessOrEqual(t, len(out), 150)
	require.True(t, utf8.ValidString(out))

	ascii := strings.Repeat("x", 500)
	require.Len(t, SanitizeFilename(ascii), 150)
}

func TestSanitizeFilenameIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"...",
		`a<b>c:d"e/f\g|h?i*j`,
		"正常的中文标题",
		strings.Repeat("长标题", 100),
		"  .hidden.  ",
		"tab\tname\nnewline",
		strings.Repeat("x", 200),
		"né à l'école",
		"emoji 🎬 title 🎞",
		"trailing dot after truncation" + strings.Repeat(".", 200),
	}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		require.Equal(t, once, SanitizeFilename(once), "input %q", in)
		require.NotEmpty(t, once)
		require.LessOrEqual(t, len(once), 150)
		require.True(t, utf8.ValidString(once))
	}
}
