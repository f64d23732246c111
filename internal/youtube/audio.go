package youtube

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
)

// Client はYouTube音声取得を抽象化するクライアント
type Client struct {
	client ytdl.Client
}

// NewClient は新しいYouTubeクライアントを作成
func NewClient() *Client {
	return &Client{client: ytdl.Client{}}
}

// IsYouTubeURL reports whether the URL points at a YouTube video.
func IsYouTubeURL(url string) bool {
	return strings.Contains(url, "youtube.com/") || strings.Contains(url, "youtu.be/")
}

// extension returns a filename extension for an audio MIME type.
func extension(mimeType string) string {
	if strings.Contains(mimeType, "mp4") {
		return ".m4a"
	}
	if strings.Contains(mimeType, "webm") {
		return ".webm"
	}
	return ".audio"
}

// DownloadAudio downloads the highest-bitrate audio-only track of a video
// into destDir and returns the local file path.
func (c *Client) DownloadAudio(ctx context.Context, videoURL, destDir string) (string, error) {
	video, err := c.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return "", fmt.Errorf("failed to get video: %w", err)
	}

	// 音声のみのフォーマットをフィルタ
	var formats []ytdl.Format
	for _, f := range video.Formats {
		if strings.HasPrefix(f.MimeType, "audio/") {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return "", fmt.Errorf("no audio formats available for %s", videoURL)
	}

	// ビットレート降順でソートして最高音質を選ぶ
	sort.Slice(formats, func(i, j int) bool {
		return formats[i].Bitrate > formats[j].Bitrate
	})
	format := &formats[0]

	stream, _, err := c.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	outputPath := fmt.Sprintf("%s/%s%s", destDir, video.ID, extension(format.MimeType))
	out, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, stream); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	return outputPath, nil
}
