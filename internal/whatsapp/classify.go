package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"wadispatch/internal/strategy"
)

// CodeReengagement is the Cloud API error for messages sent outside the
// customer service window.
const CodeReengagement = 131047

type apiError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	ErrorData struct {
		Details string `json:"details"`
	} `json:"error_data"`
	TraceID string `json:"fbtrace_id"`
}

type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

func decodeResponse(body []byte) (apiResponse, bool) {
	var r apiResponse
	if len(body) == 0 {
		return r, false
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return r, false
	}
	return r, true
}

// ClassifyUpstreamError maps a Cloud API response to an ErrorKind. 2xx
// responses classify as KindNone.
func ClassifyUpstreamError(status int, body []byte) strategy.ErrorKind {
	if status >= 200 && status < 300 {
		if r, ok := decodeResponse(body); !ok || r.Error == nil {
			return strategy.KindNone
		}
	}
	r, ok := decodeResponse(body)
	if !ok || r.Error == nil {
		if isWindowText(string(body)) {
			return strategy.KindWindowViolation
		}
		return strategy.KindUpstream
	}
	if r.Error.Code == CodeReengagement {
		return strategy.KindWindowViolation
	}
	if isWindowText(r.Error.Message) || isWindowText(r.Error.ErrorData.Details) {
		return strategy.KindWindowViolation
	}
	return strategy.KindUpstream
}

func isWindowText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "24 hour") || strings.Contains(s, "re-engagement")
}

// upstreamMessage returns the platform's own error text, or a status summary
// when the body carries none.
func upstreamMessage(status int, body []byte) string {
	if r, ok := decodeResponse(body); ok && r.Error != nil {
		msg := strings.TrimSpace(r.Error.Message)
		if d := strings.TrimSpace(r.Error.ErrorData.Details); d != "" && !strings.Contains(msg, d) {
			msg = msg + ": " + d
		}
		if msg != "" {
			return msg
		}
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if snippet == "" {
		return fmt.Sprintf("upstream status %d", status)
	}
	return fmt.Sprintf("upstream status %d: %s", status, snippet)
}
