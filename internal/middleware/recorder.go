package middleware

import (
	"bytes"
	"net/http"
)

// statusRecorder captures the status code and size of a response, and
// optionally its body.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     bool
	bytes       int
	captureBody bool
	body        bytes.Buffer
}

func newStatusRecorder(w http.ResponseWriter, captureBody bool) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK, captureBody: captureBody}
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	if rw.written {
		return
	}
	rw.status = statusCode
	rw.written = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.captureBody {
		_, _ = rw.body.Write(b)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Flush lets GraphiQL and streaming responses pass through the recorder.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
