package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeJob(t *testing.T) {
	logger, hook := test.NewNullLogger()

	job := SafeJob(logger, "warm", func() { panic("source exploded") })
	assert.NotPanics(t, job)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "PANIC recovered", entry.Message)
	assert.Equal(t, "source exploded", entry.Data["panic"])
	assert.Equal(t, "warm", entry.Data["context"])
	assert.NotEmpty(t, entry.Data["stack"])

	hook.Reset()
	ran := false
	SafeJob(logger, "sweep", func() { ran = true })()
	assert.True(t, ran)
	assert.Empty(t, hook.Entries)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/platform", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-9"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "req-9", entry.Data["request_id"])
	assert.Equal(t, "GET /api/v1/analytics/platform", entry.Data["context"])
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("boom"), "panic: boom")

	parse := func() (err error) {
		defer func() { err = MustRecover(recover()) }()
		var m map[string]int
		m["x"] = 1
		return nil
	}
	assert.Error(t, parse())
}
