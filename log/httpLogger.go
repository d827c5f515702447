package log

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/hashicorp/go-retryablehttp"
)

var _ retryablehttp.LeveledLogger = retryableHTTPLogger{}

// retryableHTTPLogger adapts retryablehttp's leveled logger onto our logfmt
// output, gated behind glog verbosity so retry chatter stays out of normal
// runs. retryablehttp hands over request URLs as *url.URL values, which would
// bypass the string-based keyval redaction, so every value is stringified and
// scrubbed here before it reaches the logger.
type retryableHTTPLogger struct {
}

func NewRetryableHTTPLogger() retryablehttp.LeveledLogger {
	return retryableHTTPLogger{}
}

func (r retryableHTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	r.log(3, msg, keysAndValues)
}

func (r retryableHTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.log(4, msg, keysAndValues)
}

func (r retryableHTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	r.log(5, msg, keysAndValues)
}

func (r retryableHTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.log(6, msg, keysAndValues)
}

func (r retryableHTTPLogger) log(verbosity glog.Level, msg string, keysAndValues []interface{}) {
	if !glog.V(verbosity) {
		return
	}
	scrubbed := make([]interface{}, len(keysAndValues))
	for i, v := range keysAndValues {
		if i%2 == 0 {
			scrubbed[i] = v
			continue
		}
		switch t := v.(type) {
		case string:
			scrubbed[i] = RedactLine(t)
		case fmt.Stringer:
			scrubbed[i] = RedactURL(t.String())
		case error:
			scrubbed[i] = RedactLine(t.Error())
		default:
			scrubbed[i] = v
		}
	}
	LogNoRequestID(msg, scrubbed...)
}
