package asr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Canonical audio format accepted by every downstream component.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
)

// SupportedFormats lists audio formats that can be converted
var SupportedFormats = []string{".mp3", ".m4a", ".aac", ".ogg", ".flac", ".wav", ".webm", ".opus", ".mp4"}

// IsSupportedFormat checks if the file extension is a supported audio format
func IsSupportedFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range SupportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// run executes an external command and returns an error carrying the full
// captured stdout/stderr on non-zero exit. The raw streams are the primary
// diagnostic when ffmpeg is missing, a codec is unsupported, or the input is
// corrupt, so they are embedded verbatim rather than summarized.
func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command failed: %s %s: %w\nstdout:\n%s\nstderr:\n%s",
			name, strings.Join(args, " "), err, stdout.String(), stderr.String())
	}
	return nil
}

// ConvertToWav converts an audio file to the canonical WAV format (16kHz, mono)
func ConvertToWav(ctx context.Context, inputPath, outputPath string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found: please install ffmpeg to convert audio files")
	}
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return run(ctx, "ffmpeg",
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn", // 映像がある場合は無視
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		outputPath,
	)
}

// SliceWav extracts [start, start+duration) seconds from a canonical WAV file
// into a new canonical WAV file.
func SliceWav(ctx context.Context, inputPath, outputPath string, start, duration float64) error {
	return run(ctx, "ffmpeg",
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", inputPath,
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		outputPath,
	)
}

// Duration returns the duration of an audio file in seconds (ffprobe).
func Duration(ctx context.Context, inputPath string) (float64, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, fmt.Errorf("ffprobe not found: please install ffmpeg")
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get audio duration: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// formatSeconds renders a second offset for ffmpeg arguments.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// FFmpeg is the command-line transcoder used by the worker pipeline.
type FFmpeg struct{}

// ToCanonical converts any supported input into the canonical WAV format.
func (FFmpeg) ToCanonical(ctx context.Context, inputPath, outputPath string) error {
	return ConvertToWav(ctx, inputPath, outputPath)
}

// Slice extracts a time range from a canonical WAV file.
func (FFmpeg) Slice(ctx context.Context, inputPath, outputPath string, start, duration float64) error {
	return SliceWav(ctx, inputPath, outputPath, start, duration)
}
