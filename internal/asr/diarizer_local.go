package asr

import (
	"context"
	"fmt"
	"os"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// LocalDiarizerConfig holds the model files for in-process diarization.
type LocalDiarizerConfig struct {
	SegmentationModel string // pyannote segmentation onnx model
	EmbeddingModel    string // speaker embedding extractor onnx model
	NumThreads        int
	ClusterThreshold  float32 // cosine distance threshold for speaker clustering
}

// LocalDiarizer runs speaker diarization in-process with sherpa-onnx.
// The pipeline is loaded once at construction and reused across jobs.
type LocalDiarizer struct {
	sd *sherpa.OfflineSpeakerDiarization
}

// NewLocalDiarizer loads the diarization pipeline from the given models.
func NewLocalDiarizer(config LocalDiarizerConfig) (*LocalDiarizer, error) {
	for name, path := range map[string]string{
		"segmentation model": config.SegmentationModel,
		"embedding model":    config.EmbeddingModel,
	} {
		if path == "" {
			return nil, fmt.Errorf("local diarizer: %s not configured", name)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("local diarizer: %s not found: %s", name, path)
		}
	}
	if config.NumThreads <= 0 {
		config.NumThreads = 2
	}
	if config.ClusterThreshold <= 0 {
		config.ClusterThreshold = 0.5
	}

	sdConfig := sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: config.SegmentationModel,
			},
			NumThreads: config.NumThreads,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      config.EmbeddingModel,
			NumThreads: config.NumThreads,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1, // 話者数は未知なのでしきい値でクラスタリング
			Threshold:   config.ClusterThreshold,
		},
	}

	sd := sherpa.NewOfflineSpeakerDiarization(&sdConfig)
	if sd == nil {
		return nil, fmt.Errorf("failed to create offline speaker diarization pipeline")
	}
	return &LocalDiarizer{sd: sd}, nil
}

// Diarize returns start-sorted speaker segments for a canonical WAV file.
func (d *LocalDiarizer) Diarize(ctx context.Context, wavPath string) ([]DiarizationSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wave := sherpa.ReadWave(wavPath)
	if wave == nil || len(wave.Samples) == 0 {
		return nil, fmt.Errorf("failed to read WAV file or file is empty: %s", wavPath)
	}
	if wave.SampleRate != d.sd.SampleRate() {
		return nil, fmt.Errorf("diarization expects %d Hz audio, got %d Hz",
			d.sd.SampleRate(), wave.SampleRate)
	}

	raw := d.sd.Process(wave.Samples)
	segments := make([]DiarizationSegment, 0, len(raw))
	for _, s := range raw {
		segments = append(segments, DiarizationSegment{
			Speaker: fmt.Sprintf("SPEAKER_%02d", s.Speaker),
			Start:   float64(s.Start),
			End:     float64(s.End),
		})
	}
	// sherpa-onnx emits segments in start order already
	return segments, nil
}

// Close frees the native diarization pipeline.
func (d *LocalDiarizer) Close() {
	if d.sd != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.sd)
		d.sd = nil
	}
}
