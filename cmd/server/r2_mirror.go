package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"liferoom.ai/internal/persistence/r2s3"
)

// r2MirrorRuntime uploads archived photos and room snapshots to an
// S3-compatible bucket. A disabled runtime accepts and ignores everything.
type r2MirrorRuntime struct {
	enabled bool
	dataDir string
	mirror  *r2s3.Mirror
	logger  *log.Logger
}

func buildR2MirrorRuntime(dataDir string, logger *log.Logger) (*r2MirrorRuntime, error) {
	if !envBool("LR_R2_MIRROR", false) {
		return &r2MirrorRuntime{enabled: false}, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("LR_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("LR_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("LR_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("LR_R2_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("LR_R2_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("LR_R2_MIRROR=true but LR_R2_ENDPOINT/LR_R2_BUCKET/LR_R2_ACCESS_KEY_ID/LR_R2_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}

	workers := envInt("LR_R2_UPLOAD_WORKERS", 2)
	queue := envInt("LR_R2_QUEUE", 256)
	return &r2MirrorRuntime{
		enabled: true,
		dataDir: dataDir,
		mirror:  r2s3.NewMirror(client, prefix, workers, queue, 2*time.Second, logger),
		logger:  logger,
	}, nil
}

func (r *r2MirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *r2MirrorRuntime) Enqueue(job r2s3.Job) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(job)
}

// EnqueueFile mirrors a file under the data dir keeping its relative path.
func (r *r2MirrorRuntime) EnqueueFile(localPath string) {
	if r == nil || !r.enabled {
		return
	}
	job, err := r2s3.FileJob(r.dataDir, localPath)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("r2 mirror: skip %s: %v", localPath, err)
		}
		return
	}
	r.Enqueue(job)
}

func (r *r2MirrorRuntime) Stats() r2s3.Stats {
	if r == nil || r.mirror == nil {
		return r2s3.Stats{}
	}
	return r.mirror.Stats()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envString(key string) string { return strings.TrimSpace(os.Getenv(key)) }
