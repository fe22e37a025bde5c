package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Record
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(records []*models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.Record, len(records))
	copy(copyBatch, records)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) all() []*models.Record {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var out []*models.Record
	for _, batch := range mw.batches {
		out = append(out, batch...)
	}
	return out
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(records []*models.Record) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func product(name, link string) *models.Record {
	price := 12.0
	return &models.Record{Name: name, Price: &price, Link: link}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)

	valid := product("Clean Architecture", "http://example.test/p/1")
	invalid := product("  ", "http://example.test/p/2")
	duplicate := product("Clean Architecture", "http://example.test/p/1")
	sameNameOtherLink := product("Clean Architecture", "http://example.test/p/3")

	if err := p.Process(valid, invalid, duplicate, nil, sameNameOtherLink); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 2 {
		t.Fatalf("written records = %d, want 2", got)
	}

	stats := p.Stats()
	if stats.Invalid != 1 {
		t.Fatalf("invalid = %d, want 1", stats.Invalid)
	}
	if stats.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", stats.Duplicates)
	}
	if stats.Written != 2 {
		t.Fatalf("written = %d, want 2", stats.Written)
	}
}

func TestPipelineDedupesOnNormalizedName(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, config.DefaultConfig())

	first := product("Clean Architecture", "http://example.test/p/1")
	spaced := product("  Clean\tArchitecture \n", "http://example.test/p/1")

	if err := p.Process(first, spaced); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	written := writer.all()
	if len(written) != 1 {
		t.Fatalf("written records = %d, want 1", len(written))
	}
	if written[0].Name != "Clean Architecture" {
		t.Fatalf("name = %q", written[0].Name)
	}
	if got := p.Stats().Duplicates; got != 1 {
		t.Fatalf("duplicates = %d, want 1", got)
	}
}

func TestPipelineKeepsSubmissionOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 3
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)

	for i := 0; i < 10; i++ {
		if err := p.Process(product("Item "+strconv.Itoa(i), "")); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i, r := range writer.all() {
		if want := "Item " + strconv.Itoa(i); r.Name != want {
			t.Fatalf("record %d = %q, want %q", i, r.Name, want)
		}
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)

	for i := 0; i < 65; i++ {
		if err := p.Process(product("Product", "http://example.test/p/"+strconv.Itoa(i))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)

	for i := 0; i < 100; i++ {
		if err := p.Process(product("Product", "http://example.test/p/"+strconv.Itoa(i+200))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written records = %d, want 100", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &mockWriter{}, config.DefaultConfig())
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process(product("Late", "")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineWriteErrorSurfaces(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	writeErr := errors.New("disk full")
	p := NewPipeline(context.Background(), &mockWriter{writeErr: writeErr}, cfg)

	_ = p.Process(product("A", ""))

	if err := p.Close(); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestPipelineFailsFastAfterWriteError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	cfg.PipelineBufferSize = 1
	writeErr := errors.New("disk full")
	p := NewPipeline(context.Background(), &mockWriter{writeErr: writeErr}, cfg)

	// The loop keeps draining after the failure so this never blocks.
	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		err = p.Process(product("Item "+strconv.Itoa(i), ""))
	}
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error from Process, got %v", err)
	}
	if err := p.Close(); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error from Close, got %v", err)
	}
	if got := p.Stats().Written; got != 0 {
		t.Fatalf("written = %d, want 0", got)
	}
}

func TestPipelineProcessHonorsContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	cfg.PipelineBufferSize = 1
	ctx, cancel := context.WithCancel(context.Background())
	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(ctx, writer, cfg)
	t.Cleanup(func() {
		close(writer.blockCh)
		_ = p.Close()
	})

	cancel()
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = p.Process(product("Item "+strconv.Itoa(i), ""))
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)

	if err := p.Process(product("Blocked", "http://example.test/p/blocked")); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}
