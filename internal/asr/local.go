package asr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// DefaultModelCacheSize bounds the number of recognizers kept loaded at once.
// Models are hundreds of MB each; loading is slow but eviction is safe.
const DefaultModelCacheSize = 2

// recognizer wraps a loaded sherpa-onnx offline recognizer.
type recognizer struct {
	config *ModelConfig
	rec    *sherpa.OfflineRecognizer
}

func newRecognizer(config *ModelConfig) (*recognizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: CanonicalSampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Transducer: sherpa.OfflineTransducerModelConfig{
				Encoder: config.EncoderPath,
				Decoder: config.DecoderPath,
				Joiner:  config.JoinerPath,
			},
			Tokens:     config.TokensPath,
			NumThreads: config.NumThreads,
			Debug:      0,
		},
	}

	rec := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if rec == nil {
		return nil, fmt.Errorf("failed to create offline recognizer for %s", config.ModelPath)
	}
	return &recognizer{config: config, rec: rec}, nil
}

func (r *recognizer) transcribeFile(wavPath string) (string, error) {
	if _, err := os.Stat(wavPath); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found: %s", wavPath)
	}
	wave := sherpa.ReadWave(wavPath)
	if wave == nil || len(wave.Samples) == 0 {
		return "", fmt.Errorf("failed to read WAV file or file is empty: %s", wavPath)
	}

	stream := sherpa.NewOfflineStream(r.rec)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(wave.SampleRate, wave.Samples)
	r.rec.Decode(stream)

	return stream.GetResult().Text, nil
}

func (r *recognizer) close() {
	if r.rec != nil {
		sherpa.DeleteOfflineRecognizer(r.rec)
		r.rec = nil
	}
}

// LocalTranscriber runs in-process inference with sherpa-onnx.
//
// Loaded recognizers are cached per model name in a bounded LRU; evicting a
// recognizer frees its native resources. Loading a model takes seconds, so
// the cache is what makes back-to-back jobs with the same model fast.
type LocalTranscriber struct {
	modelsDir string
	cache     *lru.Cache[string, *recognizer]
}

// NewLocalTranscriber creates a local transcription backend whose models live
// under modelsDir, one subdirectory per model name.
func NewLocalTranscriber(modelsDir string, cacheSize int) (*LocalTranscriber, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultModelCacheSize
	}
	cache, err := lru.NewWithEvict[string, *recognizer](cacheSize, func(_ string, r *recognizer) {
		r.close()
	})
	if err != nil {
		return nil, err
	}
	return &LocalTranscriber{modelsDir: modelsDir, cache: cache}, nil
}

// Transcribe runs offline recognition over the whole WAV file.
// The language hint is accepted for interface compatibility; transducer
// models are single-language and ignore it.
func (t *LocalTranscriber) Transcribe(ctx context.Context, wavPath, modelName, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if modelName == "" {
		modelName = "default"
	}
	rec, err := t.recognizerFor(modelName)
	if err != nil {
		return "", err
	}
	return rec.transcribeFile(wavPath)
}

func (t *LocalTranscriber) recognizerFor(modelName string) (*recognizer, error) {
	if rec, ok := t.cache.Get(modelName); ok {
		return rec, nil
	}

	config, err := NewModelConfig(filepath.Join(t.modelsDir, modelName))
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", modelName, err)
	}
	rec, err := newRecognizer(config)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", modelName, err)
	}
	t.cache.Add(modelName, rec)
	return rec, nil
}

// Close frees all cached recognizers.
func (t *LocalTranscriber) Close() {
	t.cache.Purge()
}
