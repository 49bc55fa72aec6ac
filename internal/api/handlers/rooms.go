package handlers

import (
	"geotag-service/internal/api/dto"
	"geotag-service/internal/domain"
	"geotag-service/internal/services"
	"net/http"
	"strings"
)

type RoomHandler struct {
	Regions *services.RegionStore
}

// Rooms serves GET (list), POST (register or calibrate) and DELETE on /rooms.
func (h *RoomHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.save(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (h *RoomHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	rooms, err := h.Regions.ListRooms(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "list rooms", err)
		return
	}

	res := dto.ListRoomsResponse{UserID: userID, Rooms: make([]dto.RoomResponse, 0, len(rooms))}
	for _, room := range rooms {
		res.Rooms = append(res.Rooms, toRoomResponse(room.RoomName, room.Region))
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *RoomHandler) save(w http.ResponseWriter, r *http.Request) {
	var req dto.RoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.UserID <= 0 {
		writeError(w, r, http.StatusBadRequest, "user_id must be a positive integer")
		return
	}
	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "room_name is required")
		return
	}

	flows := 0
	for _, pts := range [][][2]float64{req.Corners, req.Polygon, req.Samples} {
		if len(pts) > 0 {
			flows++
		}
	}
	if flows > 1 {
		writeError(w, r, http.StatusBadRequest, "set only one of corners, polygon, samples")
		return
	}

	var region domain.Region
	switch {
	case len(req.Corners) > 0:
		if len(req.Corners) != 2 {
			writeError(w, r, http.StatusBadRequest, "corners must contain exactly 2 points")
			return
		}
		c := toCoordinates(req.Corners)
		region = services.RectangleFromCorners(c[0], c[1])
	case len(req.Polygon) > 0:
		poly, err := services.PolygonFromCorners(toCoordinates(req.Polygon))
		if err != nil {
			writeServiceError(w, r, "save room", err)
			return
		}
		region = poly
	case len(req.Samples) > 0:
		rect, err := services.RectangleFromSamples(toCoordinates(req.Samples))
		if err != nil {
			writeServiceError(w, r, "save room", err)
			return
		}
		region = rect
	}

	if region == nil {
		if err := h.Regions.Register(r.Context(), req.UserID, name); err != nil {
			writeServiceError(w, r, "register room", err)
			return
		}
		writeJSON(w, r, http.StatusCreated, toRoomResponse(name, domain.Rectangle{}))
		return
	}

	if err := h.Regions.Save(r.Context(), req.UserID, name, region); err != nil {
		writeServiceError(w, r, "save room", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toRoomResponse(name, region))
}

func (h *RoomHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("room"))
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "room is required")
		return
	}

	if err := h.Regions.Delete(r.Context(), userID, name); err != nil {
		writeServiceError(w, r, "delete room", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCoordinates(pts [][2]float64) []domain.Coordinate {
	out := make([]domain.Coordinate, len(pts))
	for i, p := range pts {
		out[i] = domain.Coordinate{Lat: p[0], Lon: p[1]}
	}
	return out
}

func toRoomResponse(name string, region domain.Region) dto.RoomResponse {
	res := dto.RoomResponse{RoomName: name, Kind: "rectangle"}
	if region == nil {
		return res
	}

	b := region.Bounds()
	res.Bounds = dto.BoundsResponse{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: b.MinLon, MaxLon: b.MaxLon}

	var points []domain.Coordinate
	switch r := region.(type) {
	case domain.Polygon:
		res.Kind = "polygon"
		points = r.Points
		res.Polygon = make([][2]float64, len(r.Points))
		for i, p := range r.Points {
			res.Polygon[i] = [2]float64{p.Lat, p.Lon}
		}
	case domain.Rectangle:
		if r.IsZero() {
			return res
		}
		points = []domain.Coordinate{
			{Lat: float64(r.MinLat), Lon: float64(r.MinLon)},
			{Lat: float64(r.MaxLat), Lon: float64(r.MaxLon)},
		}
	}

	if c, err := services.Centroid(points); err == nil {
		res.Center = &[2]float64{c.Lat, c.Lon}
	}
	return res
}
