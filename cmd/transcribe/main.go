package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"otonote/internal/asr"

	"github.com/joho/godotenv"
)

// One-shot transcription of a local audio file, without the job store.
// Useful for trying out models and diarization settings.
func main() {
	_ = godotenv.Load()

	var (
		input        = flag.String("input", "", "audio file to transcribe (required)")
		modelsDir    = flag.String("models", "models", "directory containing ASR models")
		modelName    = flag.String("model", "default", "model name (subdirectory of -models)")
		language     = flag.String("language", "auto", "language hint")
		diarize      = flag.Bool("diarize", false, "split by speaker before transcribing")
		segmentation = flag.String("segmentation", "", "pyannote segmentation model (required with -diarize)")
		embedding    = flag.String("embedding", "", "speaker embedding model (required with -diarize)")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	workDir, err := os.MkdirTemp("", "otonote_transcribe_")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "audio_16k.wav")
	if err := asr.ConvertToWav(ctx, *input, wavPath); err != nil {
		log.Fatal(err)
	}

	transcriber, err := asr.NewLocalTranscriber(*modelsDir, 1)
	if err != nil {
		log.Fatal(err)
	}
	defer transcriber.Close()

	if !*diarize {
		text, err := transcriber.Transcribe(ctx, wavPath, *modelName, *language)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(strings.TrimSpace(text))
		return
	}

	diarizer, err := asr.NewLocalDiarizer(asr.LocalDiarizerConfig{
		SegmentationModel: *segmentation,
		EmbeddingModel:    *embedding,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer diarizer.Close()

	segments, err := diarizer.Diarize(ctx, wavPath)
	if err != nil {
		log.Fatal(err)
	}
	segments = asr.MergeSegments(segments, asr.DefaultMergeGap, asr.DefaultMergeMinDur)

	for i, seg := range segments {
		if seg.End-seg.Start < 0.1 {
			continue
		}
		chunkPath := filepath.Join(workDir, fmt.Sprintf("seg_%03d.wav", i+1))
		if err := asr.SliceWav(ctx, wavPath, chunkPath, seg.Start, seg.End-seg.Start); err != nil {
			log.Fatal(err)
		}
		text, err := transcriber.Transcribe(ctx, chunkPath, *modelName, *language)
		if err != nil {
			log.Fatal(err)
		}
		if text = strings.TrimSpace(text); text != "" {
			fmt.Printf("[%s]: %s\n", seg.Speaker, text)
		}
	}
}
