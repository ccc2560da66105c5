package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/Brownie44l1/lesion-api/internal/preprocess"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Handler struct {
	classifier *classifier.Classifier
	maxUpload  int64
	logger     zerolog.Logger
}

func NewHandler(c *classifier.Classifier, maxUploadMB int, logger zerolog.Logger) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &Handler{
		classifier: c,
		maxUpload:  int64(maxUploadMB) << 20,
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

// Routes mounts every endpoint. metrics may be nil.
func (h *Handler) Routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(h.Health))
	mux.HandleFunc("/ready", enableCORS(h.Ready))
	mux.HandleFunc("/predict", enableCORS(h.Predict))
	mux.HandleFunc("/predict/image", enableCORS(h.PredictFromImage))
	mux.HandleFunc("GET /illustrations/{label}", h.Illustration)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports load progress; 503 until the model is available.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.classifier.Status()
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := h.classifier.ClassifyTensor(req.Image)
	h.respond(w, r, result, err)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Refuse before parsing the upload when nothing could classify it.
	if !h.classifier.Ready() {
		h.respond(w, r, nil, classifier.ErrNotReady)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	h.logger.Debug().Str("filename", header.Filename).Int64("size", header.Size).Msg("received upload")

	img, err := preprocess.Decode(file)
	if err != nil {
		h.respond(w, r, nil, &classifier.ClassificationError{Source: header.Filename, Err: err})
		return
	}

	result, err := h.classifier.ClassifyImage(img)
	h.respond(w, r, result, err)
}

func (h *Handler) Illustration(w http.ResponseWriter, r *http.Request) {
	path := h.classifier.Illustration(r.PathValue("label"))
	if path == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, result *model.Result, err error) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	logger := h.logger.With().Str("request_id", requestID).Str("route", r.URL.Path).Logger()

	var cerr *classifier.ClassificationError
	switch {
	case errors.Is(err, classifier.ErrNotReady):
		status := h.classifier.Status()
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":    err.Error(),
			"progress": status.Progress,
			"reason":   status.LoadError,
		})
		return
	case errors.Is(err, model.ErrShapeMismatch):
		logger.Warn().Err(err).Msg("rejected input")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.As(err, &cerr):
		logger.Warn().Err(err).Msg("classification error")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	case err != nil:
		logger.Error().Err(err).Msg("prediction failed")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	top := result.Top()
	resp := model.PredictionResponse{
		Class:       top.Label,
		Confidence:  top.Percent(),
		Tier:        model.TierFor(top.Percent()).String(),
		Predictions: result.Predictions,
	}
	if h.classifier.Illustration(top.Label) != "" {
		resp.Illustration = "/illustrations/" + top.Label
	}

	logger.Info().Str("label", resp.Class).Float64("confidence", resp.Confidence).Msg("prediction served")
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
