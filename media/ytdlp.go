package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/subprocess"
)

const defaultBin = "yt-dlp"

// YtDlp fetches metadata and audio by shelling out to yt-dlp. The zero value
// uses the yt-dlp binary from PATH.
type YtDlp struct {
	Bin string
}

func (y YtDlp) bin() string {
	if y.Bin != "" {
		return y.Bin
	}
	return defaultBin
}

func (y YtDlp) FetchInfo(ctx context.Context, req Request) (VideoInfo, error) {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
	}
	cookiePath, removeCookies, err := writeCookieFile("", req.Cookies)
	if err != nil {
		return VideoInfo{}, err
	}
	defer removeCookies()
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, req.URL)

	stdout := bytes.Buffer{}
	stderr := bytes.Buffer{}
	cmd := exec.Command(y.bin(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := subprocess.RunWithContext(ctx, cmd); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return VideoInfo{}, ctxErr
		}
		return VideoInfo{}, classifyToolFailure(err, stderr.String(), "failed to fetch video metadata")
	}

	info, err := parseInfoJSON(stdout.Bytes())
	if err != nil {
		return VideoInfo{}, errors.E(errors.KindNetwork, "could not parse video metadata", err)
	}
	log.Log(req.TaskID, "fetched video metadata", "video_id", info.ID, "title", info.Title, "duration", info.DurationSec)
	return info, nil
}

// FetchAudio downloads the best audio track into workdir and converts it to
// mp3. It returns the path of the downloaded file.
func (y YtDlp) FetchAudio(ctx context.Context, req Request, workdir string) (string, error) {
	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-o", filepath.Join(workdir, "audio.%(ext)s"),
	}
	cookiePath, removeCookies, err := writeCookieFile(workdir, req.Cookies)
	if err != nil {
		return "", err
	}
	defer removeCookies()
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, req.URL)

	stderr := bytes.Buffer{}
	cmd := exec.Command(y.bin(), args...)
	cmd.Stderr = &stderr
	if err := subprocess.LogStdout(cmd, req.TaskID); err != nil {
		return "", err
	}

	if err := subprocess.RunWithContext(ctx, cmd); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", classifyToolFailure(err, stderr.String(), "failed to download audio")
	}
	return resolveAudioFile(workdir)
}

// parseInfoJSON decodes yt-dlp metadata output. Some extractors emit extra
// lines around the JSON object, so on a decode failure the lines are scanned
// from the bottom for the last parseable object.
func parseInfoJSON(raw []byte) (VideoInfo, error) {
	data := strings.TrimSpace(string(raw))
	if data == "" {
		return VideoInfo{}, fmt.Errorf("empty metadata output")
	}
	var info VideoInfo
	if err := json.Unmarshal([]byte(data), &info); err == nil && info.ID != "" {
		return info, nil
	}
	lines := strings.Split(data, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var candidate VideoInfo
		if json.Unmarshal([]byte(line), &candidate) == nil && candidate.ID != "" {
			return candidate, nil
		}
	}
	return VideoInfo{}, fmt.Errorf("no JSON object found in metadata output")
}

// resolveAudioFile locates the downloaded file. The output template pins the
// basename to "audio" but yt-dlp picks the extension, mp3 preferred in case
// post-processing left intermediate files behind.
func resolveAudioFile(workdir string) (string, error) {
	candidates, err := filepath.Glob(filepath.Join(workdir, "audio.*"))
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to resolve downloaded audio", err)
	}
	if len(candidates) == 0 {
		return "", errors.E(errors.KindInternal, "download finished but produced no audio file", nil)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return extPriority(candidates[i]) < extPriority(candidates[j])
	})
	path := candidates[0]
	stat, err := os.Stat(path)
	if err != nil {
		return "", errors.E(errors.KindInternal, "failed to stat downloaded audio", err)
	}
	if stat.Size() == 0 {
		return "", errors.E(errors.KindInternal, "downloaded audio file is empty", nil)
	}
	return path, nil
}

func extPriority(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return 0
	case ".m4a":
		return 1
	case ".opus", ".ogg":
		return 2
	case ".webm":
		return 3
	default:
		return 9
	}
}
