package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"github.com/perfmaster/agent/internal/httpclient"
)

// Error kinds recorded per channel.
const (
	ErrorKindTimeout  = "timeout"
	ErrorKindCanceled = "canceled"
	ErrorKindRefused  = "connection_refused"
	ErrorKindDNS      = "dns"
	ErrorKindNetwork  = "network"
	ErrorKindEncode   = "encode"
	ErrorKindOther    = "other"

	httpKindPrefix = "http_"
)

// ClassifyError maps a delivery error to a short, stable kind. API errors
// become "http_<status>".
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) {
		return httpKindPrefix + strconv.Itoa(apiErr.StatusCode)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorKindRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorKindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindNetwork
	}

	var unsupportedValue *json.UnsupportedValueError
	var unsupportedType *json.UnsupportedTypeError
	var marshalErr *json.MarshalerError
	if errors.As(err, &unsupportedValue) || errors.As(err, &unsupportedType) || errors.As(err, &marshalErr) {
		return ErrorKindEncode
	}
	return ErrorKindOther
}

var friendlyKinds = map[string]string{
	ErrorKindTimeout:  "Request timed out",
	ErrorKindCanceled: "Request canceled",
	ErrorKindRefused:  "Connection refused",
	ErrorKindDNS:      "DNS lookup failed",
	ErrorKindNetwork:  "Network error",
	ErrorKindEncode:   "Payload encoding failed",
	ErrorKindOther:    "Other error",
}

// FriendlyErrorName returns a report label for an error kind.
func FriendlyErrorName(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "Unknown error"
	}
	if label, ok := friendlyKinds[kind]; ok {
		return label
	}
	if code, ok := strings.CutPrefix(kind, httpKindPrefix); ok {
		n, err := strconv.Atoi(code)
		if err == nil {
			if text := http.StatusText(n); text != "" {
				return fmt.Sprintf("API error %d (%s)", n, text)
			}
			return fmt.Sprintf("API error %d", n)
		}
	}
	return kind
}
