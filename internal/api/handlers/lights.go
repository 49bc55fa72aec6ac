package handlers

import (
	"geotag-service/internal/api/dto"
	"geotag-service/internal/domain"
	"geotag-service/internal/services"
	"net/http"
	"strings"
)

type LightHandler struct {
	Lighting *services.LightingService
}

// Lights serves GET (current lights) and PUT (replace lights) on /lights.
func (h *LightHandler) Lights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		room := strings.TrimSpace(r.URL.Query().Get("room"))
		if room == "" {
			writeError(w, r, http.StatusBadRequest, "room is required")
			return
		}
		h.writeLights(w, r, http.StatusOK, room)
	case http.MethodPut:
		var req dto.SaveLightsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		room := strings.TrimSpace(req.Room)
		if room == "" {
			writeError(w, r, http.StatusBadRequest, "room is required")
			return
		}
		for _, l := range req.Lights {
			if strings.TrimSpace(l.Name) == "" {
				writeError(w, r, http.StatusBadRequest, "light name is required")
				return
			}
			if l.Brightness < 0 || l.Brightness > services.BrightnessCeiling {
				writeError(w, r, http.StatusBadRequest, "brightness must be between 0 and 255")
				return
			}
		}

		lights := make([]domain.Light, len(req.Lights))
		for i, l := range req.Lights {
			lights[i] = domain.Light{Name: strings.TrimSpace(l.Name), Brightness: l.Brightness, ManualControl: l.ManualControl}
		}
		if err := h.Lighting.SaveLights(r.Context(), room, lights); err != nil {
			writeServiceError(w, r, "save lights", err)
			return
		}
		h.writeLights(w, r, http.StatusOK, room)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// Manual toggles manual control of one light.
func (h *LightHandler) Manual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.ManualControlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Room) == "" || strings.TrimSpace(req.Light) == "" {
		writeError(w, r, http.StatusBadRequest, "room and light are required")
		return
	}
	if req.Brightness < 0 || req.Brightness > services.BrightnessCeiling {
		writeError(w, r, http.StatusBadRequest, "brightness must be between 0 and 255")
		return
	}

	light, err := h.Lighting.SetManualControl(r.Context(), strings.TrimSpace(req.Room), req.Light, req.Manual, req.Brightness)
	if err != nil {
		writeServiceError(w, r, "manual control", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toLightDTO(light))
}

// Motion feeds one accelerometer sample to the room's brightness controller.
func (h *LightHandler) Motion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req dto.MotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	hasAxes := req.X != nil && req.Y != nil && req.Z != nil
	if hasAxes == (req.Magnitude != nil) {
		writeError(w, r, http.StatusBadRequest, "set either x, y, z or magnitude")
		return
	}

	c, err := h.Lighting.Controller(r.Context(), req.Room)
	if err != nil {
		writeServiceError(w, r, "motion", err)
		return
	}

	var accepted bool
	if hasAxes {
		accepted = c.HandleAcceleration(*req.X, *req.Y, *req.Z)
	} else {
		accepted = c.HandleMagnitude(*req.Magnitude)
	}

	st := c.State()
	writeJSON(w, r, http.StatusOK, dto.MotionResponse{
		Room:           strings.TrimSpace(req.Room),
		Accepted:       accepted,
		Raw:            st.Raw,
		Displayed:      st.Displayed,
		PendingDecay:   st.PendingDecay,
		PendingReblend: st.PendingReblend,
	})
}

func (h *LightHandler) writeLights(w http.ResponseWriter, r *http.Request, status int, room string) {
	c, err := h.Lighting.Controller(r.Context(), room)
	if err != nil {
		writeServiceError(w, r, "lights", err)
		return
	}

	lights := c.Lights()
	res := dto.LightsResponse{Room: room, Displayed: c.State().Displayed, Lights: make([]dto.LightDTO, len(lights))}
	for i, l := range lights {
		res.Lights[i] = toLightDTO(l)
	}
	writeJSON(w, r, status, res)
}

func toLightDTO(l domain.Light) dto.LightDTO {
	return dto.LightDTO{Name: l.Name, Brightness: l.Brightness, ManualControl: l.ManualControl}
}
