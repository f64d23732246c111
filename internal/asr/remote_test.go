package asr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestWav(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio_16k.wav")
	if err := os.WriteFile(path, []byte("RIFFfake"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRemoteTranscriber(t *testing.T) {
	var gotAuth, gotModel, gotLanguage, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("not a multipart request: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "remote result"})
	}))
	defer srv.Close()

	tr := NewRemoteTranscriber(srv.URL, "secret", 0)
	text, err := tr.Transcribe(context.Background(), writeTestWav(t), "small", "ja")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "remote result" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "small" {
		t.Errorf("model field = %q", gotModel)
	}
	if gotLanguage != "ja" {
		t.Errorf("language field = %q", gotLanguage)
	}
	if gotFilename != "audio_16k.wav" {
		t.Errorf("uploaded filename = %q", gotFilename)
	}
}

func TestRemoteTranscriber_AutoLanguageOmitted(t *testing.T) {
	var hasLanguage bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		_, hasLanguage = r.MultipartForm.Value["language"]
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	tr := NewRemoteTranscriber(srv.URL, "", 0)
	if _, err := tr.Transcribe(context.Background(), writeTestWav(t), "small", "auto"); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if hasLanguage {
		t.Error("language=auto should not be sent to the remote backend")
	}
}

func TestRemoteTranscriber_HTTPErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewRemoteTranscriber(srv.URL, "", 0)
	_, err := tr.Transcribe(context.Background(), writeTestWav(t), "small", "auto")
	if err == nil {
		t.Fatal("expected error on http 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error = %v, want status and body preserved", err)
	}
}

func TestRemoteDiarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]DiarizationSegment{
			{Speaker: "SPEAKER_00", Start: 0, End: 3.2},
			{Speaker: "SPEAKER_01", Start: 3.2, End: 5.1},
		})
	}))
	defer srv.Close()

	d := NewRemoteDiarizer(srv.URL, "hf_token", 0)
	segments, err := d.Diarize(context.Background(), writeTestWav(t))
	if err != nil {
		t.Fatalf("Diarize failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Speaker != "SPEAKER_00" || segments[1].End != 5.1 {
		t.Errorf("segments = %v", segments)
	}
}

func TestRemoteDiarizer_MissingToken(t *testing.T) {
	requestSeen := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestSeen = true
	}))
	defer srv.Close()

	d := NewRemoteDiarizer(srv.URL, "  ", 0)
	_, err := d.Diarize(context.Background(), writeTestWav(t))
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("error = %v, want ErrMissingToken", err)
	}
	if requestSeen {
		t.Error("audio was uploaded despite missing token")
	}
}
