package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/model"
	"github.com/Brownie44l1/eeg-api/internal/rank"
	"github.com/Brownie44l1/eeg-api/internal/session"
)

func newTestServer(t *testing.T, loader *model.Loader) (*httptest.Server, *session.Store) {
	t.Helper()
	cfg := config.Default()
	ranker, err := rank.NewRanker(cfg)
	require.NoError(t, err)

	store := session.NewStore(session.NewPipeline(cfg, loader, ranker))
	srv := httptest.NewServer(NewHandler(store).Routes())
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})
	return srv, store
}

func staticLoader() *model.Loader {
	return model.Ready("static", model.NewStaticClassifier(config.DefaultSize, 0.1, 0.7, 0.05, 0.15))
}

func constant(v float64) []float64 {
	out := make([]float64, config.DefaultSize)
	for i := range out {
		out[i] = v
	}
	return out
}

// signalFile builds a file with the header and skipped lines the ingestor expects.
func signalFile(samples int) string {
	cfg := config.Default().Signal
	var b strings.Builder
	for i := 0; i < cfg.HeaderOffset; i++ {
		b.WriteString("header\n")
	}
	for i := 0; i < cfg.Skip; i++ {
		b.WriteString("0\n")
	}
	for i := 0; i < samples; i++ {
		fmt.Fprintf(&b, "%d\n", i%10)
	}
	return b.String()
}

func multipartBody(t *testing.T, field, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, "signal.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "static", health.Model)
}

func TestHealthModelFailed(t *testing.T) {
	loader := model.NewLoader("broken", func(context.Context) (model.Classifier, error) {
		return nil, fmt.Errorf("model file not found")
	})
	loader.Start(context.Background())
	_, err := loader.Wait(context.Background())
	require.Error(t, err)

	srv, _ := newTestServer(t, loader)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health HealthResponse
	decode(t, resp, &health)
	assert.Equal(t, "failed", health.Status)
	assert.Contains(t, health.Error, "model file not found")
}

func TestPredict(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	body, _ := json.Marshal(PredictionRequest{Values: constant(0.5)})
	resp, err := http.Post(srv.URL+"/predict", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var pred PredictionResponse
	decode(t, resp, &pred)
	assert.Equal(t, "Normal", pred.Class)
	assert.InDelta(t, 0.7, pred.Confidence, 1e-6)
	require.Len(t, pred.Predictions, 4)
	assert.Equal(t, "70,000%", pred.Predictions[0].FormattedPercentage)
	assert.Equal(t, "Piscada", pred.Predictions[3].Label)
}

func TestPredictRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	tests := []struct {
		name   string
		method string
		body   string
	}{
		{"wrong method", http.MethodGet, ""},
		{"invalid json", http.MethodPost, "{"},
		{"wrong length", http.MethodPost, `{"values":[0.1,0.2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+"/predict", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.method != http.MethodPost {
				assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
				return
			}
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPredictModelLoading(t *testing.T) {
	loader := model.NewLoader("slow", func(ctx context.Context) (model.Classifier, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	srv, _ := newTestServer(t, loader)

	body, _ := json.Marshal(PredictionRequest{Values: constant(0.5)})
	resp, err := http.Post(srv.URL+"/predict", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestPredictFromFile(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	body, contentType := multipartBody(t, "file", signalFile(config.DefaultSize))
	resp, err := http.Post(srv.URL+"/predict/file", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var pred PredictionResponse
	decode(t, resp, &pred)
	assert.Equal(t, "Normal", pred.Class)
	require.Len(t, pred.Values, config.DefaultSize)
	assert.Equal(t, 0.0, pred.Values[0])
	assert.Equal(t, 1.0, pred.Values[9])
}

func TestPredictFromFileErrors(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	t.Run("wrong field", func(t *testing.T) {
		body, contentType := multipartBody(t, "image", signalFile(config.DefaultSize))
		resp, err := http.Post(srv.URL+"/predict/file", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var e ErrorResponse
		decode(t, resp, &e)
		assert.Contains(t, e.Hints, "use 'file' as the form field name")
	})

	t.Run("short file", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", signalFile(10))
		resp, err := http.Post(srv.URL+"/predict/file", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestSessionLifecycle(t *testing.T) {
	srv, store := newTestServer(t, staticLoader())

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap session.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, session.StatusEmpty, snap.Status)
	assert.Equal(t, 1, store.Len())

	body, contentType := multipartBody(t, "file", signalFile(config.DefaultSize))
	resp, err = http.Post(srv.URL+"/api/sessions/"+snap.ID+"/file", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/sessions/" + snap.ID)
		if err != nil {
			return false
		}
		var got session.Snapshot
		decode(t, resp, &got)
		return got.Status == session.StatusReady && len(got.Predictions) == 4
	}, 2*time.Second, 10*time.Millisecond)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+snap.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/sessions/" + snap.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWaveform(t *testing.T) {
	srv, store := newTestServer(t, staticLoader())
	sess := store.Create()
	require.NoError(t, sess.SetValues(constant(0.5)))

	resp, err := http.Get(srv.URL + "/api/sessions/" + sess.ID() + "/waveform.png?width=200&height=100")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(srv.URL + "/api/sessions/" + sess.ID() + "/waveform.svg")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "image/svg+xml", resp2.Header.Get("Content-Type"))

	resp3, err := http.Get(srv.URL + "/api/sessions/" + sess.ID() + "/waveform.png?width=-1")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestRenderCacheDroppedWithSession(t *testing.T) {
	cfg := config.Default()
	ranker, err := rank.NewRanker(cfg)
	require.NoError(t, err)
	store := session.NewStore(session.NewPipeline(cfg, staticLoader(), ranker))
	t.Cleanup(store.Close)
	h := NewHandler(store)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	sess := store.Create()
	resp, err := http.Get(srv.URL + "/api/sessions/" + sess.ID() + "/waveform.png")
	require.NoError(t, err)
	resp.Body.Close()

	h.mu.Lock()
	assert.Len(t, h.renders, 1)
	h.mu.Unlock()

	// an abandoned session is reaped without anyone calling DELETE
	assert.Equal(t, 1, store.Sweep(time.Now().Add(time.Hour), time.Minute))

	h.mu.Lock()
	assert.Empty(t, h.renders)
	h.mu.Unlock()
}

func TestIndexAndCORS(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/predict", nil)
	req.Header.Set("Origin", "http://example.com")
	opt, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer opt.Body.Close()
	assert.Equal(t, http.StatusOK, opt.StatusCode)
}

func TestAllowedOrigin(t *testing.T) {
	assert.Equal(t, "*", allowedOrigin([]string{"*"}, "http://a"))
	assert.Equal(t, "http://a", allowedOrigin([]string{"http://a"}, "http://a"))
	assert.Equal(t, "", allowedOrigin([]string{"http://a"}, "http://b"))
	assert.Equal(t, "", allowedOrigin(nil, "http://a"))
}

func readState(t *testing.T, conn *websocket.Conn, until func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "state" && until(*msg.State) {
			return *msg.State
		}
	}
}

func TestSessionSocketDrawing(t *testing.T) {
	srv, store := newTestServer(t, staticLoader())
	sess := store.Create()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + sess.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readState(t, conn, func(session.Snapshot) bool { return true })
	assert.Equal(t, session.StatusEmpty, initial.Status)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "resize", Width: 512, Height: 100}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "pointer_down", X: 10, Y: 0}))

	snap := readState(t, conn, func(s session.Snapshot) bool {
		return s.Status == session.StatusReady && s.Values != nil
	})
	assert.Equal(t, 1.0, snap.Values[10])
	assert.Equal(t, "Normal", snap.Predictions[0].Label)
	require.NotNil(t, snap.Stroke)
	assert.Equal(t, 10, snap.Stroke.Index)
}

func TestSessionSocketRejectsUnknownEvent(t *testing.T) {
	srv, store := newTestServer(t, staticLoader())
	sess := store.Create()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + sess.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "wiggle"}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "error" {
			assert.Contains(t, msg.Error.Error, "unknown event type")
			assert.Empty(t, msg.Error.Recovery)
			return
		}
	}
}

func TestSessionSocketUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, staticLoader())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
