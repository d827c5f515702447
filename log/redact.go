package log

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// secretKeys matches map keys and keyval keys whose values must never be
// logged or persisted as-is.
var secretKeys = regexp.MustCompile(`(?i)(api_?key|authorization|token|cookie|secret|password)`)

// urlCredentials matches user:password@ credentials embedded in a URL.
var urlCredentials = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+):([^@/\s]+)@`)

var (
	secretsMu    sync.RWMutex
	secretValues []string
)

// RegisterSecret adds a literal value (e.g. a loaded API key) that must be
// scrubbed from every log line.
func RegisterSecret(v string) {
	if v == "" {
		return
	}
	secretsMu.Lock()
	defer secretsMu.Unlock()
	secretValues = append(secretValues, v)
}

// RedactURL masks the password of a URL's userinfo. Input without
// credentials passes through untouched; unparseable input is replaced
// wholesale rather than risking a partial leak.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "REDACTED"
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}
	return u.Redacted()
}

// RedactLine masks inline URL credentials and registered secret values in a
// free-form string (error messages, subprocess output).
func RedactLine(s string) string {
	s = urlCredentials.ReplaceAllString(s, "$1:xxxxx@")
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	for _, v := range secretValues {
		s = strings.ReplaceAll(s, v, "***")
	}
	return s
}

// RedactLogs redacts any URL-shaped entries of a delimiter-separated log
// blob (subprocess output is piped through here line by line).
func RedactLogs(logs, delimiter string) string {
	parts := strings.Split(logs, delimiter)
	for i, p := range parts {
		if strings.HasPrefix(p, "http") || strings.HasPrefix(p, "https") {
			parts[i] = RedactURL(p)
		} else {
			parts[i] = RedactLine(p)
		}
	}
	return strings.Join(parts, delimiter)
}

// RedactValue deep-copies v, replacing the value of every secret-named key
// with "***". Pass every user-supplied or loaded config object through this
// before logging or persisting it.
func RedactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if secretKeys.MatchString(k) {
				out[k] = "***"
				continue
			}
			out[k] = RedactValue(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if secretKeys.MatchString(k) {
				out[k] = "***"
			} else {
				out[k] = val
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = RedactValue(val)
		}
		return out
	case string:
		return RedactLine(t)
	default:
		return v
	}
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	out := make([]interface{}, len(keyvals))
	copy(out, keyvals)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if ok && secretKeys.MatchString(key) {
			out[i+1] = "***"
			continue
		}
		switch val := out[i+1].(type) {
		case string:
			out[i+1] = RedactLine(val)
		case map[string]interface{}, map[string]string, []interface{}:
			out[i+1] = RedactValue(val)
		}
	}
	return out
}
