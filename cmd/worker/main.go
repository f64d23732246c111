package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"otonote/internal/asr"
	"otonote/internal/config"
	"otonote/internal/storage"
	"otonote/internal/version"
	"otonote/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み（存在しない場合はスキップ）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("otonote worker v%s starting (asr=%s diarize=%s)",
		version.Version, cfg.ASRBackend, cfg.DiarizeBackend)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	transcriber, closeTranscriber, err := buildTranscriber(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeTranscriber()

	diarizer, closeDiarizer, err := buildDiarizer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeDiarizer()

	w := worker.NewWorker(storage.NewJobRepository(db), worker.Options{
		Transcriber:  transcriber,
		Diarizer:     diarizer,
		PollInterval: cfg.PollInterval,
		RunningLease: cfg.RunningLease,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
}

// buildTranscriber selects the transcription backend at process start.
func buildTranscriber(cfg *config.Config) (asr.Transcriber, func(), error) {
	if cfg.ASRBackend == config.BackendRemote {
		return asr.NewRemoteTranscriber(cfg.RemoteASRURL, cfg.RemoteASRToken, 0), func() {}, nil
	}
	t, err := asr.NewLocalTranscriber(cfg.ModelsDir, cfg.ModelCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}

// buildDiarizer selects the diarization backend at process start.
func buildDiarizer(cfg *config.Config) (asr.Diarizer, func(), error) {
	if cfg.DiarizeBackend == config.BackendRemote {
		return asr.NewRemoteDiarizer(cfg.RemoteDiarizeURL, cfg.HFToken, 0), func() {}, nil
	}
	d, err := asr.NewLocalDiarizer(asr.LocalDiarizerConfig{
		SegmentationModel: cfg.SegmentationModel,
		EmbeddingModel:    cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}
