package r2s3

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Putter is the upload side of Client.
type Putter interface {
	PutObject(ctx context.Context, objectKey, contentType string, body []byte) error
}

// Job loads its body lazily on a worker so callers never block on I/O.
type Job struct {
	Key  string
	Load func(ctx context.Context) (body []byte, contentType string, err error)
}

// FileJob uploads a file under dataDir keeping its relative path.
func FileJob(dataDir, localPath string) (Job, error) {
	if localPath == "" {
		return Job{}, fmt.Errorf("empty local path")
	}
	absBase, err := filepath.Abs(dataDir)
	if err != nil {
		return Job{}, err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return Job{}, err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return Job{}, err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return Job{}, fmt.Errorf("path %s is outside data dir %s", absLocal, absBase)
	}
	return Job{
		Key: rel,
		Load: func(context.Context) ([]byte, string, error) {
			b, err := os.ReadFile(absLocal)
			return b, "application/octet-stream", err
		},
	}, nil
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

// Mirror uploads jobs on a bounded queue with a few workers. When the queue
// stays full past enqueueWait the job is dropped and counted.
type Mirror struct {
	client Putter
	prefix string
	logger *log.Logger

	jobs        chan Job
	enqueueWait time.Duration
	backoff     func(attempt int) time.Duration
	wg          sync.WaitGroup
	closeOnce   sync.Once

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	uploadSuccessTotal  atomic.Uint64
	uploadFailTotal     atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

func NewMirror(client Putter, prefix string, workers, queueCapacity int, enqueueWait time.Duration, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	if enqueueWait <= 0 {
		enqueueWait = 25 * time.Millisecond
	}
	m := &Mirror{
		client:      client,
		prefix:      strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:      logger,
		jobs:        make(chan Job, queueCapacity),
		enqueueWait: enqueueWait,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 200 * time.Millisecond
		},
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for job := range m.jobs {
				m.uploadOne(job)
			}
		}()
	}
	return m
}

func (m *Mirror) Enqueue(job Job) {
	if m == nil || m.client == nil {
		return
	}
	m.enqueuedTotal.Add(1)

	select {
	case m.jobs <- job:
		return
	default:
	}

	m.queueSaturatedTotal.Add(1)
	timer := time.NewTimer(m.enqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- job:
		return
	case <-timer.C:
		dropped := m.droppedTotal.Add(1)
		m.printf("archive drop key=%s reason=queue_saturated wait_ms=%d dropped_total=%d", job.Key, m.enqueueWait.Milliseconds(), dropped)
	}
}

// Close drains queued jobs and waits for the workers.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		close(m.jobs)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.jobs),
		QueueCapacity:       cap(m.jobs),
		EnqueuedTotal:       m.enqueuedTotal.Load(),
		QueueSaturatedTotal: m.queueSaturatedTotal.Load(),
		DroppedTotal:        m.droppedTotal.Load(),
		UploadSuccessTotal:  m.uploadSuccessTotal.Load(),
		UploadFailTotal:     m.uploadFailTotal.Load(),
		LastSuccessUnix:     m.lastSuccessUnix.Load(),
		LastErrorUnix:       m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) uploadOne(job Job) {
	key := normalizeObjectKey(job.Key)
	if key == "" || job.Load == nil {
		m.printf("archive skip key=%q: empty key or loader", job.Key)
		return
	}
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}

	if err := m.uploadWithRetry(key, job); err != nil {
		m.uploadFailTotal.Add(1)
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		m.printf("archive upload failed key=%s err=%v", key, err)
		return
	}
	m.uploadSuccessTotal.Add(1)
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
	m.printf("archive uploaded key=%s", key)
}

func (m *Mirror) uploadWithRetry(key string, job Job) error {
	const maxAttempts = 4
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	body, contentType, err := job.Load(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := m.client.PutObject(ctx, key, contentType, body)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(m.backoff(attempt))
		}
	}
	return lastErr
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
