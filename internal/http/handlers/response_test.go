package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newEnvelopeRouter(rid string, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		if logger != nil {
			c.Set("logger", logger)
		}
		c.Next()
	})
	return r
}

func Test_fail_AwardFailed_LogsAndBody(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := newEnvelopeRouter("rid-500", &logger)

	r.POST("/users/:id/awards", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeAwardFailed, "could not record award")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users/u1/awards", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != "award_failed" || resp.Message != "could not record award" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"code":"award_failed"`) {
		t.Fatalf("expected error log with code, got: %s", buf.String())
	}
}

func Test_fail_4xx_DomainCodesAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := newEnvelopeRouter("rid-4xx", &logger)

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/user", http.StatusNotFound, ErrCodeUserNotFound},
		{"/source", http.StatusBadRequest, ErrCodeInvalidSource},
		{"/amount", http.StatusBadRequest, ErrCodeInvalidAmount},
		{"/tracker", http.StatusServiceUnavailable, ErrCodeTrackerStopped},
	}
	for _, tc := range cases {
		tc := tc
		r.GET(tc.path, func(c *gin.Context) { Fail(c, tc.status, tc.code, "nope") })
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.status {
			t.Fatalf("%s: status=%d want %d", tc.path, w.Code, tc.status)
		}
		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Fatalf("%s: json: %v", tc.path, err)
		}
		if er.RequestID != "rid-4xx" || er.Code != tc.code {
			t.Fatalf("%s: unexpected body: %+v", tc.path, er)
		}
	}

	// 503 tracker_stopped is a server-side condition and is logged; the 4xx are not.
	if n := strings.Count(buf.String(), `"level":"error"`); n != 1 || !strings.Contains(buf.String(), ErrCodeTrackerStopped) {
		t.Fatalf("want exactly one error log for tracker_stopped, got: %s", buf.String())
	}
}

func Test_ok_And_noContent(t *testing.T) {
	r := newEnvelopeRouter("rid-ok", nil)

	r.POST("/admin/boosts", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"id": "b1", "xp_multiplier": 2})
	})
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/boosts", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json 201: %v", err)
	}
	if body["id"] != "b1" || body["xp_multiplier"].(float64) != 2 {
		t.Fatalf("unexpected body: %#v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("want empty 204, got %d %q", w.Code, w.Body.String())
	}
}
