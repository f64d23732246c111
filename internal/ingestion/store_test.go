package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStore_SaveAndRemove(t *testing.T) {
	dataDir := t.TempDir()
	store, err := NewStore(dataDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	ref, err := store.SaveUpload("meeting.mp3", strings.NewReader("audio bytes"))
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}

	if filepath.Dir(ref) != filepath.Join(dataDir, "input") {
		t.Errorf("upload stored at %q, want under %s/input", ref, dataDir)
	}
	base := filepath.Base(ref)
	if !strings.HasPrefix(base, "meeting_") || !strings.HasSuffix(base, ".mp3") {
		t.Errorf("stored name = %q, want original name with unique suffix", base)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "audio bytes" {
		t.Errorf("stored content = %q", data)
	}

	if err := store.Remove(ref); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(ref); !os.IsNotExist(err) {
		t.Error("stored file still exists after Remove")
	}
	// 冪等に削除できる
	if err := store.Remove(ref); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
}

func TestStore_CollisionFreeNames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := store.SaveUpload("audio.wav", strings.NewReader("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.SaveUpload("audio.wav", strings.NewReader("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two uploads of the same filename collided: %q", a)
	}
}

func TestStore_RemoveLeavesForeignPathsAlone(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	outside := filepath.Join(t.TempDir(), "caller_owned.mp3")
	if err := os.WriteFile(outside, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := store.Remove(outside); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("Remove deleted a file outside the store")
	}

	// リモートURL参照も無視される
	if err := store.Remove("https://example.com/audio.mp3"); err != nil {
		t.Errorf("Remove of URL ref failed: %v", err)
	}
}
