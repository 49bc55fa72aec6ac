package handlers

import (
	"geotag-service/internal/api/dto"
	"geotag-service/internal/domain"
	"geotag-service/internal/services"
	"log"
	"math"
	"net/http"
	"strings"
)

type TrackingHandler struct {
	Trackers *services.TrackerRegistry
}

// Position feeds one position fix to the user's tracker.
func (h *TrackingHandler) Position(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.PositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		writeError(w, r, http.StatusBadRequest, "user_id must be a positive integer")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, r, http.StatusBadRequest, "lat and lon are required")
		return
	}
	if math.Abs(*req.Lat) > 90 || math.Abs(*req.Lon) > 180 {
		writeError(w, r, http.StatusBadRequest, "lat/lon out of range")
		return
	}

	tracker := h.Trackers.Tracker(req.UserID, strings.TrimSpace(req.UserDetails))
	st, err := tracker.HandleSample(r.Context(), domain.Coordinate{Lat: *req.Lat, Lon: *req.Lon})
	if err != nil {
		log.Printf("position failed: user_id=%d err=%v", req.UserID, err)
		writeError(w, r, http.StatusServiceUnavailable, "room list unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, toPositionResponse(st))
}

// Sessions ends the user's tracking session (DELETE /sessions?user_id=).
func (h *TrackingHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if !h.Trackers.Stop(userID) {
		writeError(w, r, http.StatusNotFound, "no active session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPositionResponse(st services.TrackerStatus) dto.PositionResponse {
	res := dto.PositionResponse{
		UserID:        st.UserID,
		CurrentRoom:   st.CurrentRoom,
		LoggingActive: st.LoggingActive,
		Evaluated:     st.Evaluated,
	}
	if st.LastAccepted != nil {
		res.LastAccepted = &[2]float64{st.LastAccepted.Lat, st.LastAccepted.Lon}
	}
	return res
}
