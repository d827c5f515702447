package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/requests"
)

type StopAllResponse struct {
	Stopped int `json:"stopped"`
}

// StopAll cancels every running and queued task.
func (d *HandlersCollection) StopAll() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		stopped := d.Engine.StopAll()
		log.Log(requestID, "stopped all tasks", "count", stopped)
		writeSuccess(w, requestID, StopAllResponse{Stopped: stopped})
	}
}
