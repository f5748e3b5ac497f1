package store

import (
	"context"
	"testing"

	"sudooom.musicroom/internal/room"
)

func TestMemoryStoreSaveLoadDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap := &room.Snapshot{
		Code:              "123456",
		HostID:            "host",
		CurrentTrackIndex: -1,
		ServerTimeMs:      1234,
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "123456")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.HostID != "host" || loaded.ServerTimeMs != 1234 {
		t.Errorf("Unexpected snapshot: %+v", loaded)
	}

	if err := s.Delete(ctx, "123456"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Load(ctx, "123456"); err != ErrSnapshotNotFound {
		t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Load(context.Background(), "000000"); err != ErrSnapshotNotFound {
		t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, &room.Snapshot{Code: "123456", ServerTimeMs: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, &room.Snapshot{Code: "123456", ServerTimeMs: 2}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "123456")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ServerTimeMs != 2 {
		t.Errorf("Expected latest snapshot, got %+v", loaded)
	}
}

func TestBuildRoomKey(t *testing.T) {
	if got := buildRoomKey("123456"); got != "musicroom:room:123456" {
		t.Errorf("Unexpected key: %s", got)
	}
}
