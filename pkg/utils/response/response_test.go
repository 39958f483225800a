package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"execbox/pkg/errors"

	"github.com/gin-gonic/gin"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/run", nil)
	c.Set("trace_id", "trace-1")
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestOutcomeStatusFollowsCode(t *testing.T) {
	cases := []struct {
		code   errors.ErrorCode
		status int
	}{
		{errors.Success, http.StatusOK},
		{errors.PolicyViolationKilled, http.StatusOK},
		{errors.ValidationRejected, http.StatusUnprocessableEntity},
		{errors.SupervisorInternalError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, rec := newContext()
		Outcome(c, tc.code, map[string]string{"k": "v"})
		resp := decode(t, rec)
		if rec.Code != tc.status || resp.Code != tc.code || resp.TraceID != "trace-1" {
			t.Fatalf("code %d: status = %d, resp = %+v", tc.code, rec.Code, resp)
		}
	}
}

func TestErrorHidesInternalCauses(t *testing.T) {
	c, rec := newContext()
	Error(c, errors.Wrapf(stderrors.New("open /tmp/execbox/abc: denied"), errors.SupervisorInternalError, "write /tmp/execbox/abc failed"))
	resp := decode(t, rec)
	if rec.Code != http.StatusInternalServerError || strings.Contains(resp.Message, "/tmp") {
		t.Fatalf("status = %d, message = %q", rec.Code, resp.Message)
	}

	c, rec = newContext()
	Error(c, errors.Newf(errors.ProfileNotFound, "profile %q not found", "nope"))
	resp = decode(t, rec)
	if rec.Code != http.StatusNotFound || resp.Message != `profile "nope" not found` {
		t.Fatalf("status = %d, message = %q", rec.Code, resp.Message)
	}
}

func TestAbortWithErrorCode(t *testing.T) {
	c, rec := newContext()
	AbortWithErrorCode(c, errors.TooManyRequests, "")
	resp := decode(t, rec)
	if !c.IsAborted() || rec.Code != http.StatusTooManyRequests || resp.Message != errors.TooManyRequests.Message() {
		t.Fatalf("aborted = %v, status = %d, resp = %+v", c.IsAborted(), rec.Code, resp)
	}
}
