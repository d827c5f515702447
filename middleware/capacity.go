package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/metrics"
	"github.com/zhuguadundan/videowhisper/registry"
	"github.com/zhuguadundan/videowhisper/requests"
)

// CapacityMiddleware rejects new submissions before any task record is
// created when the system is saturated. The coordinator's queue still
// enforces the hard limit; this closes the window where many concurrent
// submissions would each create a task only to be bounced by the queue.
type CapacityMiddleware struct {
	submissionsInFlight atomic.Int64
}

func (c *CapacityMiddleware) HasCapacity(reg *registry.Registry, maxActive int, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.Metrics.HTTPRequestsInFlight.Add(1)
		defer metrics.Metrics.HTTPRequestsInFlight.Add(-1)

		inFlight := c.submissionsInFlight.Add(1)
		defer c.submissionsInFlight.Add(-1)

		if reg.CountActive()+int(inFlight)-1 >= maxActive {
			errors.WriteHTTPTooManyRequests(w, requests.GetRequestID(r), "任务队列已满，请稍后重试", nil)
			return
		}

		next(w, r, ps)
	}
}
