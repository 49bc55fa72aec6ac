package services

import (
	"context"
	"errors"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/ports"
	"log"
	"strings"
	"sync"
)

// regionResolver produces a region for a room from one storage tier.
// found=false hands resolution to the next tier.
type regionResolver interface {
	name() string
	resolve(ctx context.Context, roomName string) (region domain.Region, found bool, err error)
}

// RegionStore maps calibrated rooms to regions.
//
// Reads are resolved through an ordered list of tiers: the polygon tier first,
// then the legacy rectangle tier. A room known to storage with neither tier
// resolves to the all-zero Rectangle, which callers must read as
// "uncalibrated". A room unknown to storage resolves to nil.
//
// Writes are serialized against reads with a single RWMutex.
type RegionStore struct {
	mu        sync.RWMutex
	repo      ports.RegionRepository
	resolvers []regionResolver
}

func NewRegionStore(repo ports.RegionRepository) *RegionStore {
	return &RegionStore{
		repo: repo,
		resolvers: []regionResolver{
			polygonResolver{repo: repo},
			rectangleResolver{repo: repo},
		},
	}
}

// Register creates a room with no calibration. Registering an existing room
// leaves its region untouched.
func (s *RegionStore) Register(ctx context.Context, userID int64, roomName string) error {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return fmt.Errorf("register room: %w", domain.ErrEmptyRoomName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.RegisterRoom(ctx, userID, roomName); err != nil {
		return fmt.Errorf("register room %q: %w", roomName, err)
	}
	return nil
}

// Save replaces the region stored for a room, creating the room if needed.
func (s *RegionStore) Save(ctx context.Context, userID int64, roomName string, region domain.Region) error {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return fmt.Errorf("save region: %w", domain.ErrEmptyRoomName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r := region.(type) {
	case domain.Rectangle:
		if err := s.repo.SaveRectangle(ctx, userID, roomName, r); err != nil {
			return fmt.Errorf("save region: room %q: %w", roomName, err)
		}
	case domain.Polygon:
		if len(r.Points) < domain.MinPolygonPoints {
			return fmt.Errorf("save region: room %q: got %d points: %w", roomName, len(r.Points), domain.ErrInvalidPolygon)
		}
		if err := s.repo.SavePolygon(ctx, userID, roomName, r); err != nil {
			return fmt.Errorf("save region: room %q: %w", roomName, err)
		}
	default:
		return fmt.Errorf("save region: room %q: unsupported region %T", roomName, region)
	}
	return nil
}

// RoomNames returns the user's rooms in listing order.
func (s *RegionStore) RoomNames(ctx context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.repo.ListRoomNames(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("room names: user %d: %w", userID, err)
	}
	return names, nil
}

// ListRooms returns every room of the user with its resolved region.
// Uncalibrated rooms are listed with the all-zero Rectangle.
func (s *RegionStore) ListRooms(ctx context.Context, userID int64) ([]domain.CalibratedRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.repo.ListRoomNames(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: user %d: %w", userID, err)
	}

	rooms := make([]domain.CalibratedRoom, 0, len(names))
	for _, name := range names {
		region, found, err := s.resolveLocked(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		if !found {
			region = domain.Rectangle{}
		}
		rooms = append(rooms, domain.CalibratedRoom{UserID: userID, RoomName: name, Region: region})
	}
	return rooms, nil
}

// GetRegion resolves a single room. It returns nil for unknown rooms.
func (s *RegionStore) GetRegion(ctx context.Context, roomName string) (domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	region, found, err := s.resolveLocked(ctx, roomName)
	if err != nil {
		return nil, fmt.Errorf("get region: %w", err)
	}
	if found {
		return region, nil
	}

	exists, err := s.repo.RoomExists(ctx, roomName)
	if err != nil {
		return nil, fmt.Errorf("get region: room %q: %w", roomName, err)
	}
	if exists {
		return domain.Rectangle{}, nil
	}
	return nil, nil
}

// Delete removes the room and all its spatial data. Absent rooms are a no-op.
func (s *RegionStore) Delete(ctx context.Context, userID int64, roomName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteRoom(ctx, userID, roomName); err != nil {
		return fmt.Errorf("delete room %q: %w", roomName, err)
	}
	return nil
}

func (s *RegionStore) resolveLocked(ctx context.Context, roomName string) (domain.Region, bool, error) {
	for _, r := range s.resolvers {
		region, found, err := r.resolve(ctx, roomName)
		if err != nil {
			return nil, false, fmt.Errorf("room %q: %s tier: %w", roomName, r.name(), err)
		}
		if found {
			return region, true, nil
		}
	}
	return nil, false, nil
}

// polygonResolver never fails: storage errors and short outlines degrade to
// the next tier.
type polygonResolver struct {
	repo ports.RegionRepository
}

func (polygonResolver) name() string { return "polygon" }

func (p polygonResolver) resolve(ctx context.Context, roomName string) (domain.Region, bool, error) {
	points, found, err := p.repo.LoadPolygon(ctx, roomName)
	if err != nil {
		log.Printf("region store: polygon lookup failed room=%q err=%v (falling back to rectangle)", roomName, err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}

	poly, err := domain.NewPolygon(points)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPolygon) {
			log.Printf("region store: ignoring polygon room=%q points=%d", roomName, len(points))
			return nil, false, nil
		}
		return nil, false, err
	}
	return poly, true, nil
}

type rectangleResolver struct {
	repo ports.RegionRepository
}

func (rectangleResolver) name() string { return "rectangle" }

func (r rectangleResolver) resolve(ctx context.Context, roomName string) (domain.Region, bool, error) {
	rect, found, err := r.repo.LoadRectangle(ctx, roomName)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return rect, true, nil
}
