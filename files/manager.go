package files

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/fsutil"
)

// Manager is the only component allowed to turn client-supplied identifiers
// into filesystem paths. Everything it resolves is containment-checked
// against the two storage roots.
type Manager struct {
	TempDir   string
	OutputDir string
}

func NewManager(tempDir, outputDir string) *Manager {
	return &Manager{TempDir: tempDir, OutputDir: outputDir}
}

// Entry describes one managed file as returned by ListAll.
type Entry struct {
	Name      string    `json:"name"`
	TaskID    string    `json:"task_id,omitempty"`
	Size      int64     `json:"size"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	PathToken string    `json:"path_token"`
}

// ListAll walks both storage roots and returns every regular file, newest
// first. Dotfiles (the registry snapshot among them) are skipped.
func (m *Manager) ListAll() ([]Entry, error) {
	entries := []Entry{}
	for _, r := range []struct{ prefix, dir string }{
		{rootOutput, m.OutputDir},
		{rootTemp, m.TempDir},
	} {
		sub, err := m.listRoot(r.prefix, r.dir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sub...)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func (m *Manager) listRoot(prefix, dir string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		entries = append(entries, Entry{
			Name:      d.Name(),
			TaskID:    taskIDFor(prefix, rel),
			Size:      info.Size(),
			Kind:      classify(d.Name()),
			CreatedAt: info.ModTime(),
			PathToken: EncodeToken(prefix, rel),
		})
		return nil
	})
	if err != nil {
		return nil, errors.E(errors.KindInternal, "listing files failed", err)
	}
	return entries, nil
}

// taskIDFor extracts the owning task id from a root-relative path. Output
// files always live under their task dir; temp uploads are keyed by an
// upload id instead and carry no task association.
func taskIDFor(prefix, rel string) string {
	first, rest, ok := strings.Cut(rel, "/")
	if !ok || rest == "" {
		return ""
	}
	if prefix == rootTemp && first == uploadsDir {
		return ""
	}
	return first
}

func classify(name string) string {
	switch name {
	case "transcript.md":
		return "transcript"
	case "transcript_timestamps.md":
		return "timestamps"
	case "summary.md":
		return "summary"
	case "data.json":
		return "data"
	case "bilingual.md":
		return "bilingual"
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg", ".opus":
		return "audio"
	}
	return "other"
}

// resolve maps a token to an absolute path inside the right root.
func (m *Manager) resolve(token string) (string, error) {
	root, rel, err := decodeToken(token)
	if err != nil {
		return "", err
	}
	dir := m.OutputDir
	if root == rootTemp {
		dir = m.TempDir
	}
	return fsutil.SafeJoin(dir, rel)
}

// OpenForDownload opens the file a token points at and returns it together
// with a sanitized name for the Content-Disposition header. The caller owns
// closing the file.
func (m *Manager) OpenForDownload(token string) (*os.File, string, error) {
	p, err := m.resolve(token)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.E(errors.KindNotFound, "file not found", err)
		}
		return nil, "", errors.E(errors.KindInternal, "opening file failed", err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, "", errors.E(errors.KindNotFound, "file not found", err)
	}
	return f, fsutil.SanitizeFilename(filepath.Base(p)), nil
}

// OpenOutput opens a file addressed by an output-root-relative path, as
// stored in task artifact records.
func (m *Manager) OpenOutput(rel string) (*os.File, error) {
	p, err := fsutil.SafeJoin(m.OutputDir, rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.KindNotFound, "file not found", err)
		}
		return nil, errors.E(errors.KindInternal, "opening file failed", err)
	}
	return f, nil
}

// DeleteMany removes the files behind each token and reports per-token
// outcomes instead of failing the batch on the first bad token.
func (m *Manager) DeleteMany(tokens []string) (deleted []string, failed map[string]string) {
	deleted = []string{}
	failed = map[string]string{}
	for _, token := range tokens {
		p, err := m.resolve(token)
		if err != nil {
			failed[token] = errors.UserMessage(err)
			continue
		}
		if err := os.Remove(p); err != nil {
			if os.IsNotExist(err) {
				failed[token] = "file not found"
			} else {
				failed[token] = "deleting file failed"
			}
			continue
		}
		deleted = append(deleted, token)
	}
	return deleted, failed
}

// DeleteTask purges both per-task directories. Missing directories are not
// an error so the operation is idempotent.
func (m *Manager) DeleteTask(taskID string) error {
	if taskID == "" {
		return errors.E(errors.KindBadRequest, "task id is empty", nil)
	}
	for _, root := range []string{m.OutputDir, m.TempDir} {
		dir, err := fsutil.SafeJoin(root, taskID)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(dir); err != nil {
			return errors.E(errors.KindInternal, "deleting task files failed", err)
		}
	}
	return nil
}

const uploadsDir = "uploads"

// SaveUpload streams an uploaded file into a fresh directory under the temp
// root and returns its temp-root-relative path, the form task records store.
// The caller bounds r; disk-full surfaces as its own kind so clients can tell
// it from a bad upload.
func (m *Manager) SaveUpload(filename string, r io.Reader) (string, error) {
	name := fsutil.SanitizeFilename(filename)
	rel := path.Join(uploadsDir, uuid.NewString(), name)
	dst, err := fsutil.SafeJoin(m.TempDir, rel)
	if err != nil {
		return "", err
	}
	if err := fsutil.EnsureDir(filepath.Dir(dst)); err != nil {
		return "", errors.E(errors.KindInternal, "creating upload dir failed", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", errors.E(errors.KindInternal, "creating upload file failed", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		if isNoSpace(err) {
			return "", errors.E(errors.KindDiskFull, "storage is full", err)
		}
		return "", errors.E(errors.KindBadRequest, "reading upload failed", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", errors.E(errors.KindInternal, "writing upload failed", err)
	}
	return rel, nil
}

func isNoSpace(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no space left on device")
}
