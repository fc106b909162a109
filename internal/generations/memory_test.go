package generations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/models"
)

func newRecord(user uuid.UUID, status models.GenerationStatus) *models.Generation {
	return &models.Generation{
		ID:       uuid.New(),
		UserID:   user,
		Provider: "runware",
		Type:     models.TypeTextToVideo,
		Prompt:   "a cat surfing",
		Model:    "veo-3-fast",
		Parameters: map[string]any{
			"duration":      8,
			"generateAudio": true,
		},
		Status: status,
	}
}

func TestUpdate_MergesParameters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newRecord(uuid.New(), models.GenerationPending)
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Update(ctx, g.ID, Patch{
		Status:     Status(models.GenerationProcessing),
		Parameters: map[string]any{models.ParamTaskHandle: "task-123"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.TaskHandle() != "task-123" {
		t.Errorf("task handle: got %q", got.TaskHandle())
	}
	if got.Parameters["duration"] != 8 || got.Parameters["generateAudio"] != true {
		t.Errorf("sibling parameters clobbered: %v", got.Parameters)
	}
	if got.Status != models.GenerationProcessing {
		t.Errorf("status: got %s", got.Status)
	}
}

func TestUpdate_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newRecord(uuid.New(), models.GenerationPending)
	_ = s.Create(ctx, g)

	got, _ := s.Get(ctx, g.ID)
	got.Parameters["duration"] = 99
	again, _ := s.Get(ctx, g.ID)
	if again.Parameters["duration"] != 8 {
		t.Errorf("caller mutation leaked into store: %v", again.Parameters)
	}
}

func TestUpdate_ConditionalStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newRecord(uuid.New(), models.GenerationProcessing)
	_ = s.Create(ctx, g)

	url := "https://cdn.example.com/v.mp4"
	if _, err := s.Update(ctx, g.ID, Patch{Status: Status(models.GenerationCompleted), ResultURL: &url},
		models.GenerationPending, models.GenerationProcessing); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	_, err := s.Update(ctx, g.ID, Patch{Status: Status(models.GenerationFailed)},
		models.GenerationPending, models.GenerationProcessing)
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("second transition: got %v, want ErrStaleStatus", err)
	}
	got, _ := s.Get(ctx, g.ID)
	if got.Status != models.GenerationCompleted || got.ErrorMessage != nil {
		t.Errorf("terminal record changed: %+v", got)
	}
}

func TestUpdate_ConcurrentClaimSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newRecord(uuid.New(), models.GenerationProcessing)
	_ = s.Create(ctx, g)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, g.ID, Patch{Status: Status(models.GenerationCompleted)}, models.GenerationProcessing)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("winners: got %d, want 1", winners)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := s.Update(context.Background(), uuid.New(), Patch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update: got %v, want ErrNotFound", err)
	}
}

func TestListByUser_NewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	user := uuid.New()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		g := newRecord(user, models.GenerationPending)
		_ = s.Create(ctx, g)
		ids = append(ids, g.ID)
	}
	_ = s.Create(ctx, newRecord(uuid.New(), models.GenerationPending))

	got, err := s.ListByUser(ctx, user, 2)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Errorf("order: got %v", got)
	}
}

func TestListByUser_TypeFilterBeforeLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	user := uuid.New()
	var videos []uuid.UUID
	for i := 0; i < 2; i++ {
		g := newRecord(user, models.GenerationCompleted)
		_ = s.Create(ctx, g)
		videos = append(videos, g.ID)
	}
	for i := 0; i < 3; i++ {
		g := newRecord(user, models.GenerationCompleted)
		g.Type = models.TypeTextToImage
		_ = s.Create(ctx, g)
	}

	got, err := s.ListByUser(ctx, user, 2, models.TypeTextToVideo, models.TypeImageToVideo)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != videos[1] || got[1].ID != videos[0] {
		t.Errorf("older videos behind newer images: got %d records", len(got))
	}
	images, _ := s.ListByUser(ctx, user, 10, models.TypeTextToImage)
	if len(images) != 3 {
		t.Errorf("images: got %d, want 3", len(images))
	}
}

func TestListByStatus_OldestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }
	ctx := context.Background()

	a := newRecord(uuid.New(), models.GenerationProcessing)
	b := newRecord(uuid.New(), models.GenerationProcessing)
	c := newRecord(uuid.New(), models.GenerationCompleted)
	for _, g := range []*models.Generation{a, b, c} {
		_ = s.Create(ctx, g)
	}

	got, _ := s.ListByStatus(ctx, models.GenerationProcessing, 10)
	if len(got) != 2 || got[0].ID != a.ID {
		t.Errorf("ListByStatus: got %d records", len(got))
	}
}
