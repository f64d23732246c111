package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultRemoteTimeout bounds one remote inference call. Jobs run for minutes
// on long recordings, so the limit is generous.
const DefaultRemoteTimeout = 20 * time.Minute

// RemoteTranscriber invokes a remote synchronous transcription endpoint.
// The request is a multipart upload of the canonical WAV plus model/language
// form fields; the response is {"text": "..."}.
type RemoteTranscriber struct {
	url    string
	token  string
	client *http.Client
}

// NewRemoteTranscriber creates a remote transcription backend.
func NewRemoteTranscriber(url, token string, timeout time.Duration) *RemoteTranscriber {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteTranscriber{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type remoteTranscribeResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the WAV file and blocks until the remote result arrives.
func (t *RemoteTranscriber) Transcribe(ctx context.Context, wavPath, modelName, language string) (string, error) {
	fields := map[string]string{"model": modelName}
	if language != "" && language != "auto" {
		fields["language"] = language
	}

	body, err := t.post(ctx, t.url, wavPath, fields)
	if err != nil {
		return "", fmt.Errorf("remote transcription failed: %w", err)
	}

	var res remoteTranscribeResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("remote transcription: unexpected response: %w", err)
	}
	return res.Text, nil
}

func (t *RemoteTranscriber) post(ctx context.Context, url, wavPath string, fields map[string]string) ([]byte, error) {
	return postWav(ctx, t.client, url, t.token, wavPath, fields)
}

// RemoteDiarizer invokes a remote synchronous diarization endpoint.
// The endpoint fronts a pyannote pipeline and requires a Hugging Face token.
type RemoteDiarizer struct {
	url    string
	token  string
	client *http.Client
}

// NewRemoteDiarizer creates a remote diarization backend. The token may be
// empty here; its absence is reported by Diarize before any upload happens.
func NewRemoteDiarizer(url, token string, timeout time.Duration) *RemoteDiarizer {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteDiarizer{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Diarize uploads the WAV file and returns start-sorted speaker segments.
func (d *RemoteDiarizer) Diarize(ctx context.Context, wavPath string) ([]DiarizationSegment, error) {
	if strings.TrimSpace(d.token) == "" {
		return nil, ErrMissingToken
	}

	body, err := postWav(ctx, d.client, d.url, d.token, wavPath, nil)
	if err != nil {
		return nil, fmt.Errorf("remote diarization failed: %w", err)
	}

	var segments []DiarizationSegment
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, fmt.Errorf("remote diarization: unexpected response: %w", err)
	}
	return segments, nil
}

// postWav uploads a WAV file as multipart form data and returns the response
// body. Non-2xx responses become errors carrying the body for diagnosis.
func postWav(ctx context.Context, client *http.Client, url, token, wavPath string, fields map[string]string) ([]byte, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
