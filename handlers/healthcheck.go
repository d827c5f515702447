package handlers

import (
	"net/http"
	"os/exec"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/requests"
)

type HealthcheckResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Tools   map[string]bool `json:"tools"`
}

// Healthcheck reports process liveness plus whether the external tools the
// pipeline shells out to are installed. Missing tools degrade the status but
// the endpoint still returns 200 so load balancers keep routing.
func (d *HandlersCollection) Healthcheck() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)

		tools := map[string]bool{}
		status := "healthy"
		for _, bin := range []string{"yt-dlp", "ffmpeg", "ffprobe"} {
			_, err := exec.LookPath(bin)
			tools[bin] = err == nil
			if err != nil {
				status = "degraded"
			}
		}
		writeSuccess(w, requestID, HealthcheckResponse{
			Status:  status,
			Version: config.Version,
			Tools:   tools,
		})
	}
}
