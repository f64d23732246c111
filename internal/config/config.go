package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// バックエンド種別
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config は環境変数から読み込む設定
type Config struct {
	// 共通
	DBPath  string // OTONOTE_DB
	DataDir string // OTONOTE_DATA_DIR

	// server
	Port string // PORT

	// worker
	PollInterval time.Duration // WORKER_POLL_INTERVAL
	RunningLease time.Duration // WORKER_RUNNING_LEASE

	// 文字起こしバックエンド
	ASRBackend     string // OTONOTE_ASR_BACKEND: local | remote
	ModelsDir      string // OTONOTE_MODELS_DIR (local)
	RemoteASRURL   string // OTONOTE_REMOTE_ASR_URL (remote)
	RemoteASRToken string // OTONOTE_REMOTE_ASR_TOKEN
	ModelCacheSize int    // OTONOTE_MODEL_CACHE_SIZE

	// 話者分離バックエンド
	DiarizeBackend    string // OTONOTE_DIARIZE_BACKEND: local | remote
	SegmentationModel string // OTONOTE_SEGMENTATION_MODEL (local)
	EmbeddingModel    string // OTONOTE_EMBEDDING_MODEL (local)
	RemoteDiarizeURL  string // OTONOTE_REMOTE_DIARIZE_URL (remote)
	HFToken           string // HF_TOKEN
}

// Load は環境変数から設定を読み込む（未設定はデフォルト値）
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:            getenv("OTONOTE_DB", "data/otonote.db"),
		DataDir:           getenv("OTONOTE_DATA_DIR", "data"),
		Port:              getenv("PORT", "8080"),
		ASRBackend:        getenv("OTONOTE_ASR_BACKEND", BackendLocal),
		ModelsDir:         getenv("OTONOTE_MODELS_DIR", "models"),
		RemoteASRURL:      os.Getenv("OTONOTE_REMOTE_ASR_URL"),
		RemoteASRToken:    os.Getenv("OTONOTE_REMOTE_ASR_TOKEN"),
		DiarizeBackend:    getenv("OTONOTE_DIARIZE_BACKEND", BackendRemote),
		SegmentationModel: os.Getenv("OTONOTE_SEGMENTATION_MODEL"),
		EmbeddingModel:    os.Getenv("OTONOTE_EMBEDDING_MODEL"),
		RemoteDiarizeURL:  os.Getenv("OTONOTE_REMOTE_DIARIZE_URL"),
		HFToken:           os.Getenv("HF_TOKEN"),
	}

	var err error
	cfg.PollInterval, err = getenvDuration("WORKER_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RunningLease, err = getenvDuration("WORKER_RUNNING_LEASE", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.ModelCacheSize, err = getenvInt("OTONOTE_MODEL_CACHE_SIZE", 2)
	if err != nil {
		return nil, err
	}

	if err := validBackend(cfg.ASRBackend); err != nil {
		return nil, fmt.Errorf("OTONOTE_ASR_BACKEND: %w", err)
	}
	if err := validBackend(cfg.DiarizeBackend); err != nil {
		return nil, fmt.Errorf("OTONOTE_DIARIZE_BACKEND: %w", err)
	}
	return cfg, nil
}

func validBackend(v string) error {
	if v != BackendLocal && v != BackendRemote {
		return fmt.Errorf("unknown backend %q (want %q or %q)", v, BackendLocal, BackendRemote)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
