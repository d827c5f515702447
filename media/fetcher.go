package media

import "context"

// VideoInfo mirrors the fields of yt-dlp --dump-json output the pipeline
// cares about.
type VideoInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	DurationSec float64 `json:"duration"`
	Description string  `json:"description"`
	WebpageURL  string  `json:"webpage_url"`
}

// Request identifies one fetch. Cookies holds an optional Netscape cookie
// jar; its contents never appear in logs or error messages.
type Request struct {
	TaskID  string
	URL     string
	Cookies string
}

// Fetcher obtains metadata and an audio track for a video URL. The pipeline
// is tested against fakes so the suite does not need yt-dlp installed.
type Fetcher interface {
	FetchInfo(ctx context.Context, req Request) (VideoInfo, error)
	FetchAudio(ctx context.Context, req Request, workdir string) (string, error)
}
