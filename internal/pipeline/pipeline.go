// Package pipeline runs sprite generation jobs on a worker pool and fans
// results out to subscribers.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"pixelmap/internal/genimage"
	"pixelmap/internal/sprite"
)

// Generator produces pixel-art from a source image and prompt. The live
// implementation is genimage.Client; tests swap in a stub.
type Generator interface {
	Generate(ctx context.Context, image []byte, mimeType, prompt string) (genimage.Generated, error)
}

// Job is one sprite generation request. Token is the fencing value issued
// by the editor when the job starts; completions carrying a stale token are
// discarded by the consumer.
type Job struct {
	ID       string
	MemoryID int64
	Token    uint64
	Image    []byte
	MimeType string
	Prompt   string
}

// Result is the outcome of a Job. On success Sprite holds the processed
// art with its background stripped and content bounds measured.
type Result struct {
	Job    Job
	Sprite sprite.Processed
	Error  error
}

// Pipeline dispatches generation jobs across workers.
type Pipeline struct {
	gen      Generator
	log      *slog.Logger
	jobs     chan Job
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once

	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New starts a Pipeline with the given concurrency.
func New(ctx context.Context, concurrency int, gen Generator, logger *slog.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		gen:    gen,
		log:    logger,
		jobs:   make(chan Job, concurrency*2),
		cancel: cancel,
		subs:   make(map[int]chan Result),
	}

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

// Submit queues a job. A full queue rejects rather than blocks so the
// caller can surface the failure immediately.
func (p *Pipeline) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("generation queue is full")
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()
			p.log.Info("generation started", "job", job.ID, "memory", job.MemoryID, "token", job.Token)

			res := Result{Job: job}
			gen, err := p.gen.Generate(ctx, job.Image, job.MimeType, job.Prompt)
			if err != nil {
				res.Error = err
			} else {
				res.Sprite, res.Error = sprite.Process(gen.Data)
			}

			if res.Error != nil {
				p.log.Error("generation failed", "job", job.ID, "memory", job.MemoryID, "duration", time.Since(start), "error", res.Error)
			} else {
				p.log.Info("generation complete", "job", job.ID, "memory", job.MemoryID, "duration", time.Since(start))
			}
			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel of results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}
