package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Brownie44l1/eeg-api/internal/canvas"
	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/logger"
	"github.com/Brownie44l1/eeg-api/internal/model"
	"github.com/Brownie44l1/eeg-api/internal/rank"
	"github.com/Brownie44l1/eeg-api/internal/session"
	"github.com/Brownie44l1/eeg-api/internal/web"
)

type Handler struct {
	cfg      *config.Config
	store    *session.Store
	pipeline *session.Pipeline
	renderer *canvas.Renderer
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	renders map[string]*canvas.Cache
}

func NewHandler(store *session.Store) *Handler {
	cfg := store.Pipeline().Config()
	h := &Handler{
		cfg:      cfg,
		store:    store,
		pipeline: store.Pipeline(),
		renderer: canvas.NewRenderer(cfg.Render),
		logger:   logger.ComponentLogger("handlers"),
		renders:  make(map[string]*canvas.Cache),
	}
	store.OnRemove(h.dropRenderCache)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin(cfg.Server.AllowedOrigins, origin) != ""
		},
	}
	return h
}

// Routes registers every endpoint on a new mux wrapped in CORS handling.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/predict", h.Predict)
	mux.HandleFunc("/predict/file", h.PredictFromFile)

	mux.HandleFunc("POST /api/model/reload", h.ReloadModel)
	mux.HandleFunc("POST /api/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/file", h.UploadToSession)
	mux.HandleFunc("POST /api/sessions/{id}/values", h.SetSessionValues)
	mux.HandleFunc("GET /api/sessions/{id}/waveform.png", h.waveform(canvas.PNG))
	mux.HandleFunc("GET /api/sessions/{id}/waveform.svg", h.waveform(canvas.SVG))
	mux.HandleFunc("GET /api/sessions/{id}/ws", h.SessionSocket)

	return enableCORS(h.cfg.Server.AllowedOrigins, mux)
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.Index)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	loader := h.pipeline.Loader()
	_, state, err := loader.Current()

	resp := HealthResponse{Model: loader.Name(), Sessions: h.store.Len()}
	status := http.StatusOK
	switch state {
	case model.StateReady:
		resp.Status = "healthy"
	case model.StateLoading:
		resp.Status = "loading"
	default:
		resp.Status = "failed"
		if err != nil {
			resp.Error = err.Error()
		}
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Predict classifies a raw row of values already in unit range.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.Server.MaxUploadBytes))
	if err != nil {
		writeFailure(w, errors.Wrap(errors.ErrInvalidRequest, "failed to read request body"))
		return
	}

	var req PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeFailure(w, errors.Wrap(errors.ErrInvalidRequest, "invalid JSON"))
		return
	}

	preds, err := h.pipeline.Classify(r.Context(), req.Values)
	if err != nil {
		h.logFailure("predict", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPredictionResponse(preds, nil))
}

// PredictFromFile ingests an uploaded signal file, normalizes the window and classifies it.
func (h *Handler) PredictFromFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	file, err := h.formFile(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer file.Close()

	values, preds, err := h.pipeline.ClassifyFile(r.Context(), file)
	if err != nil {
		h.logFailure("predict_file", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPredictionResponse(preds, values))
}

func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	loader := h.pipeline.Loader()
	h.logger.Infow("Model reload requested", logger.FieldModel, loader.Name())
	loader.Reload(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, HealthResponse{Status: string(loader.State()), Model: loader.Name()})
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.store.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadToSession replaces a session's buffer with an uploaded signal file.
func (h *Handler) UploadToSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	file, err := h.formFile(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, errors.Wrap(errors.ErrInvalidRequest, "failed to read upload"))
		return
	}
	if err := sess.Import(string(data)); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

func (h *Handler) SetSessionValues(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	var req PredictionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.cfg.Server.MaxUploadBytes)).Decode(&req); err != nil {
		writeFailure(w, errors.Wrap(errors.ErrInvalidRequest, "invalid JSON"))
		return
	}
	if err := sess.SetValues(req.Values); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// waveform serves the session buffer as an image. Width and height default to
// the session's canvas size.
func (h *Handler) waveform(format canvas.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := h.store.Get(id)
		if err != nil {
			writeFailure(w, err)
			return
		}

		vp := sess.Viewport()
		width, err := intParam(r, "width", int(vp.Width), h.cfg.Render.Width)
		if err != nil {
			writeFailure(w, err)
			return
		}
		height, err := intParam(r, "height", int(vp.Height), h.cfg.Render.Height)
		if err != nil {
			writeFailure(w, err)
			return
		}

		buf, gen := sess.Buffer()
		data, err := h.renderCache(id).Get(gen, buf, width, height, format)
		if err != nil {
			writeFailure(w, err)
			return
		}

		if format == canvas.SVG {
			w.Header().Set("Content-Type", "image/svg+xml")
		} else {
			w.Header().Set("Content-Type", "image/png")
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Write(data)
	}
}

func (h *Handler) dropRenderCache(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.renders, id)
}

func (h *Handler) renderCache(id string) *canvas.Cache {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.renders[id]
	if !ok {
		c = canvas.NewCache(h.renderer)
		h.renders[id] = c
	}
	return c
}

// formFile returns the uploaded "file" field. The extension is not checked.
func (h *Handler) formFile(r *http.Request) (io.ReadCloser, error) {
	if err := r.ParseMultipartForm(h.cfg.Server.MaxUploadBytes); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "failed to parse form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, "no signal file provided"),
			"use 'file' as the form field name")
	}

	h.logger.Infow("Received file",
		logger.FieldFile, header.Filename,
		logger.FieldSize, header.Size,
	)
	return file, nil
}

func (h *Handler) logFailure(op string, err error) {
	if errors.IsInputError(err) || errors.Is(err, errors.ErrModelNotReady) {
		h.logger.Debugw("Request rejected", logger.FieldOperation, op, logger.FieldError, err.Error())
		return
	}
	h.logger.Errorw("Prediction error", logger.FieldOperation, op, logger.FieldError, err.Error())
}

// intParam parses a positive integer query parameter, falling back to
// preferred and then def when absent.
func intParam(r *http.Request, name string, preferred, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if preferred > 0 {
			return preferred, nil
		}
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.Wrapf(errors.ErrInvalidRequest, "%s must be a positive integer, got %q", name, raw)
	}
	return v, nil
}

func newPredictionResponse(preds []rank.Prediction, values []float64) PredictionResponse {
	return PredictionResponse{
		Class:       preds[0].Label,
		Confidence:  preds[0].Probability,
		Predictions: preds,
		Values:      values,
	}
}
