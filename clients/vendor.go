package clients

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zhuguadundan/videowhisper/errors"
)

// vendorStatusError maps a non-2xx vendor response to a typed error. The
// response body is truncated before it lands in an error message because
// vendors echo request details back on schema errors.
func vendorStatusError(vendor string, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 300 {
		detail = detail[:300] + "..."
	}
	err := fmt.Errorf("%s returned status %d: %s", vendor, status, detail)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.E(errors.KindUnauthorized, fmt.Sprintf("%s rejected the configured API key", vendor), err)
	case status == http.StatusTooManyRequests:
		return errors.E(errors.KindVendorRateLimited, fmt.Sprintf("%s is rate limiting requests", vendor), err)
	case status >= 500:
		return errors.E(errors.KindVendorError, fmt.Sprintf("%s request failed upstream", vendor), err)
	default:
		return errors.E(errors.KindVendorError, fmt.Sprintf("%s rejected the request", vendor), err)
	}
}

// hostLabel extracts a low-cardinality host name for metrics labels.
func hostLabel(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
