package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/dedupe"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when the writer does not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for the writer.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.Record) error
	Close() error
	Validate() error
}

// Stats counts what happened to the records handed to Process.
type Stats struct {
	Written    int
	Invalid    int
	Duplicates int
}

// Pipeline validates, normalizes and de-duplicates records, then writes
// them in batches. A single goroutine owns the writer so output order is
// submission order.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	in        chan *models.Record
	done      chan struct{}
	batchSize int
	seen      *dedupe.Filter

	sendMu sync.RWMutex // guards closed and closing in
	closed bool

	mu    sync.Mutex // guards err and stats
	err   error
	stats Stats
}

// NewPipeline builds a pipeline sized from cfg and starts its writer loop.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 512
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	seen, err := dedupe.NewFilter(cfg.DedupeMaxSize)
	if err != nil {
		seen, _ = dedupe.NewFilter(config.DefaultConfig().DedupeMaxSize)
	}

	p := &Pipeline{
		ctx:       ctx,
		writer:    writer,
		in:        make(chan *models.Record, bufferSize),
		done:      make(chan struct{}),
		batchSize: batchSize,
		seen:      seen,
	}
	go p.run()
	return p
}

// Process enqueues records. Nil records are skipped. It fails fast once
// the writer has failed.
func (p *Pipeline) Process(records ...*models.Record) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if p.closed {
		return ErrPipelineClosed
	}
	for _, record := range records {
		if record == nil {
			continue
		}
		if err := p.Err(); err != nil {
			return err
		}
		select {
		case p.in <- record:
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
	return nil
}

// Close stops accepting records, flushes what is pending and returns the
// first write error.
func (p *Pipeline) Close() error {
	finished := make(chan struct{})
	go func() {
		p.sendMu.Lock()
		if !p.closed {
			p.closed = true
			close(p.in)
		}
		p.sendMu.Unlock()
		<-p.done
		close(finished)
	}()

	select {
	case <-finished:
		return p.Err()
	case <-time.After(drainTimeout):
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) run() {
	defer close(p.done)

	batch := make([]*models.Record, 0, p.batchSize)
	for record := range p.in {
		// After a failed write keep receiving so senders never block.
		if p.Err() != nil {
			continue
		}
		if !p.prepare(record) {
			continue
		}
		batch = append(batch, record)
		if len(batch) >= p.batchSize {
			p.flush(batch)
			batch = batch[:0]
		}
	}
	if p.Err() == nil {
		p.flush(batch)
	}
}

func (p *Pipeline) prepare(record *models.Record) bool {
	if err := parser.ValidateRecord(record); err != nil {
		p.count(func(s *Stats) { s.Invalid++ })
		return false
	}

	// The dedupe key must see the same name that gets written.
	record.Name = parser.NormalizeText(record.Name)
	if p.seen.Seen(record) {
		p.count(func(s *Stats) { s.Duplicates++ })
		return false
	}
	return true
}

func (p *Pipeline) flush(batch []*models.Record) {
	if len(batch) == 0 {
		return
	}
	if err := p.writer.Write(batch); err != nil {
		p.mu.Lock()
		if p.err == nil {
			p.err = fmt.Errorf("write batch: %w", err)
		}
		p.mu.Unlock()
		return
	}
	p.count(func(s *Stats) { s.Written += len(batch) })
}

func (p *Pipeline) count(update func(*Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
}
