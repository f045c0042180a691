package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"go.uber.org/zap"
)

// Viewport drives the page being tracked. browser.Page satisfies it.
type Viewport interface {
	ScrollTo(ctx context.Context, y float64) error
	Resize(ctx context.Context, width, height int) error
}

// WithViewport enables the viewport control routes.
func WithViewport(v Viewport) Option {
	return func(s *Server) { s.viewport = v }
}

type scrollRequest struct {
	Y *float64 `json:"y"`
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) scrollViewport(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Y == nil || *req.Y < 0 || math.IsNaN(*req.Y) || math.IsInf(*req.Y, 0) {
		writeError(w, http.StatusBadRequest, "y must be a non-negative number")
		return
	}
	if err := s.viewport.ScrollTo(r.Context(), *req.Y); err != nil {
		s.logger.Warn("scroll failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusBadGateway, "scroll failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) resizeViewport(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be > 0")
		return
	}
	if err := s.viewport.Resize(r.Context(), req.Width, req.Height); err != nil {
		s.logger.Warn("resize failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusBadGateway, "resize failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
