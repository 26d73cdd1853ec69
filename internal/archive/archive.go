// Package archive ships published posts and consolidation reports to S3 as batched,
// date-partitioned JSONL objects.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/blueberrycongee/murmur/internal/cognition"
	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/metrics"
)

// Record types.
const (
	RecordPost          = "post"
	RecordReply         = "reply"
	RecordConsolidation = "consolidation"
)

// Config contains configuration for the S3 archive.
type Config struct {
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	AccessKeyID   string        `yaml:"access_key_id"`
	SecretKey     string        `yaml:"secret_access_key"`
	Endpoint      string        `yaml:"endpoint"` // MinIO and other S3-compatible stores
	PathPrefix    string        `yaml:"path_prefix"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() Config {
	return Config{
		PathPrefix:    "murmur",
		FlushInterval: time.Minute,
		BatchSize:     50,
	}
}

// Record is one archived line.
type Record struct {
	Type          string                      `json:"type"`
	Timestamp     time.Time                   `json:"timestamp"`
	Username      string                      `json:"username,omitempty"`
	Content       string                      `json:"content,omitempty"`
	RemoteID      string                      `json:"remote_id,omitempty"`
	Consolidation *memory.ConsolidationReport `json:"consolidation,omitempty"`
}

// ObjectPutter is the subset of the S3 client used by the archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive batches records in memory and uploads them periodically.
type Archive struct {
	cfg    Config
	client ObjectPutter
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	queue []Record

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewS3Client builds an S3 client from cfg, falling back to the default AWS credential chain
// when no static keys are configured.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// New creates an archive writing through client. Call Start to enable periodic flushing.
func New(cfg Config, client ObjectPutter, logger *slog.Logger) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	if client == nil {
		return nil, fmt.Errorf("archive: client is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
		queue:  make([]Record, 0, cfg.BatchSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the background flush loop.
func (a *Archive) Start() {
	a.wg.Add(1)
	go a.flushLoop()
}

// ArchivePost queues a published post or reply.
func (a *Archive) ArchivePost(ctx context.Context, post cognition.Post) error {
	recordType := RecordPost
	if post.Kind == cognition.PostKindReply {
		recordType = RecordReply
	}
	ts := post.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	a.enqueue(ctx, Record{
		Type:      recordType,
		Timestamp: ts,
		Username:  post.Username,
		Content:   post.Content,
		RemoteID:  post.RemoteID,
	})
	return nil
}

// ArchiveConsolidation queues a consolidation report. Passes that merged nothing are ignored.
func (a *Archive) ArchiveConsolidation(ctx context.Context, report memory.ConsolidationReport) error {
	if report.Merged == 0 {
		return nil
	}
	a.enqueue(ctx, Record{
		Type:          RecordConsolidation,
		Timestamp:     a.now(),
		Consolidation: &report,
	})
	return nil
}

// Len returns the number of queued records.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Shutdown stops the flush loop and uploads whatever is still queued.
func (a *Archive) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
	return a.Flush(ctx)
}

func (a *Archive) enqueue(ctx context.Context, rec Record) {
	a.mu.Lock()
	a.queue = append(a.queue, rec)
	full := len(a.queue) >= a.cfg.BatchSize
	size := len(a.queue)
	a.mu.Unlock()

	metrics.ArchiveQueueSize.Set(float64(size))
	if full {
		if err := a.Flush(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("archive flush failed", "error", err)
		}
	}
}

func (a *Archive) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Flush(context.Background()); err != nil {
				a.logger.Warn("archive flush failed", "error", err)
			}
		case <-a.stopCh:
			return
		}
	}
}

// Flush uploads queued records as one JSONL object. Records are put back on failure so the
// next flush retries them.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.queue) == 0 {
		a.mu.Unlock()
		return nil
	}
	records := a.queue
	a.queue = make([]Record, 0, a.cfg.BatchSize)
	a.mu.Unlock()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			a.logger.Warn("archive: dropping unencodable record", "type", records[i].Type, "error", err)
		}
	}

	key := a.objectKey(a.now().UTC())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		a.mu.Lock()
		a.queue = append(records, a.queue...)
		size := len(a.queue)
		a.mu.Unlock()
		metrics.ArchiveQueueSize.Set(float64(size))
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}

	metrics.ArchiveQueueSize.Set(float64(a.Len()))
	a.logger.Debug("archive flushed", "key", key, "records", len(records))
	return nil
}

// objectKey lays objects out as prefix/year=YYYY/month=MM/day=DD/records_<uuid>.jsonl.
func (a *Archive) objectKey(t time.Time) string {
	datePrefix := fmt.Sprintf("year=%d/month=%02d/day=%02d", t.Year(), t.Month(), t.Day())
	filename := fmt.Sprintf("records_%d_%s.jsonl", t.Unix(), uuid.NewString())
	if a.cfg.PathPrefix != "" {
		return path.Join(a.cfg.PathPrefix, datePrefix, filename)
	}
	return path.Join(datePrefix, filename)
}

var _ cognition.Archiver = (*Archive)(nil)
