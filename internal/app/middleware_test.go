package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestTimeoutSkipsUntimedPaths(t *testing.T) {
	deadlines := map[string]bool{}
	handler := requestTimeout(time.Minute, "/ocr/process")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		deadlines[r.URL.Path] = ok
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/ocr/process", "/ocr/process/async", "/ocr/batches"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.False(t, deadlines["/ocr/process"])
	require.True(t, deadlines["/ocr/process/async"])
	require.True(t, deadlines["/ocr/batches"])
}
