// shipper.go handles delivery of stored audit records to external
// destinations (file, webhook) so the trail can be routed to a SIEM or log
// aggregator independently of the Postgres store. Shipping is asynchronous and
// best-effort: a failed delivery is counted and logged but never re-enters the
// write path.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/stockledger/stockledger/internal/db/models"
	"github.com/stockledger/stockledger/internal/telemetry"
)

// Shipper delivers one stored audit record to an external destination.
type Shipper interface {
	// Ship sends a stored record to the destination.
	Ship(ctx context.Context, record *models.AuditRecord) error
	// Close flushes and releases any resources.
	Close() error
}

// ShipperConfig selects and configures a single shipping destination.
type ShipperConfig struct {
	Enabled bool
	// Type is "file" or "webhook".
	Type    string
	File    *FileShipperConfig
	Webhook *WebhookShipperConfig
}

// FileShipperConfig configures append-only JSON-lines output with size-based
// rotation.
type FileShipperConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// WebhookShipperConfig configures HTTP POST delivery, optionally batched.
type WebhookShipperConfig struct {
	URL           string
	Headers       map[string]string
	Timeout       time.Duration
	BatchSize     int
	FlushInterval time.Duration
}

// MultiShipper fans one record out to every configured destination.
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper builds a MultiShipper from the enabled configs. It returns
// nil (and no error) when nothing is enabled so callers can pass the result
// straight to NewRecorder.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	if len(ms.shippers) == 0 {
		return nil, nil
	}
	return ms, nil
}

// Ship sends the record to all destinations, continuing past individual
// failures and returning the last error.
func (ms *MultiShipper) Ship(ctx context.Context, record *models.AuditRecord) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, record); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes all destinations, returning the last error.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FileShipper appends records as JSON lines to a local file, rotating on size.
type FileShipper struct {
	cfg  *FileShipperConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the destination file in append mode.
func NewFileShipper(cfg *FileShipperConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit export file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

// Ship writes one record as a JSON line.
func (fs *FileShipper) Ship(_ context.Context, record *models.AuditRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				telemetry.AuditShipFailuresTotal.WithLabelValues("file").Inc()
				return fmt.Errorf("failed to rotate audit export file: %w", err)
			}
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// rotate shifts existing backups up by one and reopens a fresh file.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the export file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// WebhookShipper POSTs records to an HTTP endpoint, batching when configured.
type WebhookShipper struct {
	cfg       *WebhookShipperConfig
	client    *http.Client
	batchCh   chan *models.AuditRecord
	batch     []*models.AuditRecord
	batchMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a webhook shipper. When BatchSize > 0 a background
// goroutine accumulates records and flushes on size or FlushInterval.
func NewWebhookShipper(cfg *WebhookShipperConfig) (*WebhookShipper, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		batchCh: make(chan *models.AuditRecord, 1000),
		closeCh: make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		go ws.processBatches()
	}
	return ws, nil
}

func (ws *WebhookShipper) processBatches() {
	flushInterval := ws.cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record := <-ws.batchCh:
			ws.batchMu.Lock()
			ws.batch = append(ws.batch, record)
			if len(ws.batch) >= ws.cfg.BatchSize {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ticker.C:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ws.closeCh:
			// Drain anything still queued before the final flush.
			ws.batchMu.Lock()
			for {
				select {
				case record := <-ws.batchCh:
					ws.batch = append(ws.batch, record)
				default:
					if len(ws.batch) > 0 {
						ws.flushBatch()
					}
					ws.batchMu.Unlock()
					return
				}
			}
		}
	}
}

// flushBatch sends the accumulated batch. Callers hold batchMu.
func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}

	data, err := json.Marshal(ws.batch)
	ws.batch = ws.batch[:0]
	if err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("webhook").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.client.Timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("webhook").Inc()
	}
}

// Ship queues the record when batching is enabled (falling back to a direct
// send if the queue is full), otherwise sends it immediately.
func (ws *WebhookShipper) Ship(ctx context.Context, record *models.AuditRecord) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case ws.batchCh <- record:
			return nil
		default:
			// Queue full, send directly.
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("webhook").Inc()
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("webhook").Inc()
		return err
	}
	return nil
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the batch processor, flushing any pending records.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	return nil
}
