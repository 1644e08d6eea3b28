package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

type recordingObserver struct {
	tasks    []string
	outcomes []string
}

func (r *recordingObserver) ObserveInference(task, outcome string, _ float64) {
	r.tasks = append(r.tasks, task)
	r.outcomes = append(r.outcomes, outcome)
}

func newTestGateway(t *testing.T, url string, base map[string]any, obs Observer) *Gateway {
	t.Helper()
	gw, err := NewGateway(Config{
		Endpoint:       url,
		Token:          "secret",
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		BaseInputs:     base,
	}, logging.Discard(), obs)
	require.NoError(t, err)
	return gw
}

func TestNewGatewayRequiresEndpoint(t *testing.T) {
	_, err := NewGateway(Config{Endpoint: "  "}, nil, nil)
	require.Error(t, err)
}

func TestInvokeSendsTaskTaggedInputs(t *testing.T) {
	var got map[string]map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"predictions":{"summary":"ok"}}`))
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL, map[string]any{"task": "stale", "pincode": "000000", "extra": "kept"}, nil)
	res, err := gw.Invoke(context.Background(), TaskSummarizeSymptom, map[string]any{"pincode": "500081"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	inputs := got["inputs"]
	assert.Equal(t, "summarize_symptom", inputs["task"])
	assert.Equal(t, "500081", inputs["pincode"])
	assert.Equal(t, "kept", inputs["extra"])

	var summary string
	found, err := res.Decode("summary", &summary)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ok", summary)
}

func TestInvokeRetriesRetryableStatuses(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"predictions":{"valid":true}}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	gw := newTestGateway(t, srv.URL, nil, obs)
	res, err := gw.Invoke(context.Background(), TaskValidateDate, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	var valid bool
	_, err = res.Decode("valid", &valid)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, []string{"ok"}, obs.outcomes)
}

func TestInvokeExhaustedRetriesIsNoResponse(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream busy"}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	gw := newTestGateway(t, srv.URL, nil, obs)
	_, err := gw.Invoke(context.Background(), TaskRankDoctors, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoResponse))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream busy", Detail(err))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"no_response"}, obs.outcomes)
}

func TestInvokeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad input for task"))
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL, nil, nil)
	_, err := gw.Invoke(context.Background(), TaskRecommendDoctors, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoResponse))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, TaskRecommendDoctors, statusErr.Task)
	assert.Equal(t, "bad input for task", Detail(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestInvokeUnreachableIsNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := newTestGateway(t, url, nil, nil)
	_, err := gw.Invoke(context.Background(), TaskMapToDepartment, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoResponse))
	assert.Equal(t, "No response from server", Detail(err))
}

func TestInvokeMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL, nil, nil)
	_, err := gw.Invoke(context.Background(), TaskMapToDepartment, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestResultDecodeMissingFieldIsDefault(t *testing.T) {
	res, err := decodeResult(TaskMapToDepartment, 200, []byte(`{"other":1}`))
	require.NoError(t, err)

	departments := []string{"unchanged"}
	found, err := res.Decode("departments", &departments)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"unchanged"}, departments)

	res, err = decodeResult(TaskMapToDepartment, 200, []byte(`{"predictions":{"departments":null}}`))
	require.NoError(t, err)
	found, err = res.Decode("departments", &departments)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultDecodeTypeMismatch(t *testing.T) {
	res, err := decodeResult(TaskMapToDepartment, 200, []byte(`{"predictions":{"departments":"Cardiology"}}`))
	require.NoError(t, err)
	var departments []string
	_, err = res.Decode("departments", &departments)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestDetailFallbacks(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, Detail(&StatusError{StatusCode: 500, Body: string(long)}), 100)
	assert.Equal(t, noDetails, Detail(&StatusError{StatusCode: 500}))
	assert.Equal(t, noDetails, Detail(errors.New("boom")))
}

func TestLoadBaseInputs(t *testing.T) {
	inputs, err := LoadBaseInputs("")
	require.NoError(t, err)
	assert.Nil(t, inputs)

	path := filepath.Join(t.TempDir(), "base.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"departments":["Endocrinology"],"age":20}`), 0o600))
	inputs, err = LoadBaseInputs(path)
	require.NoError(t, err)
	assert.Equal(t, float64(20), inputs["age"])

	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o600))
	_, err = LoadBaseInputs(path)
	require.Error(t, err)
}
