package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"

	"github.com/zhuguadundan/videowhisper/log"
)

func streamOutput(requestID, stream string, src io.Reader) {
	s := bufio.NewScanner(src)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		if line == "" {
			continue
		}
		log.Log(requestID, "subprocess output", "stream", stream, "line", log.RedactLogs(line, " "))
	}
	if err := s.Err(); err != nil {
		log.LogError(requestID, "subprocess output read failed", err, "stream", stream)
	}
}

// LogStdout attaches cmd's stdout to the request's log, leaving stderr for
// the caller to capture (stderr is parsed for failure classification). Must
// be called before cmd starts.
func LogStdout(cmd *exec.Cmd, requestID string) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	go streamOutput(requestID, "stdout", stdoutPipe)
	return nil
}
