package password

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

type jobKind uint8

const (
	jobHash jobKind = iota
	jobVerify
)

type job struct {
	kind     jobKind
	password string
	digest   string
	// result is buffered so a worker never blocks on a caller that stopped waiting.
	result chan jobResult
}

type jobResult struct {
	digest string
	ok     bool
	err    error
}

// Pool runs hashing jobs on a fixed set of worker goroutines.
type Pool struct {
	hasher  Hasher
	workers int

	jobs      chan job
	done      chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	panics    atomic.Uint64
}

// NewPool returns a stopped pool. workers <= 0 sizes the pool to runtime.NumCPU().
func NewPool(h Hasher, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		hasher:  h,
		workers: workers,
		jobs:    make(chan job),
		done:    make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	if p == nil {
		return
	}
	p.startOnce.Do(func() {
		p.wg.Add(p.workers)
		for i := 0; i < p.workers; i++ {
			go p.run()
		}
		p.started.Store(true)
	})
}

// Close stops accepting jobs and waits for in-flight jobs to finish.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
	})
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Panics returns how many jobs have crashed since the pool started.
func (p *Pool) Panics() uint64 {
	return p.panics.Load()
}

// Hash hashes password on a worker.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	res, err := p.submit(ctx, job{kind: jobHash, password: password})
	if err != nil {
		return "", err
	}
	return res.digest, res.err
}

// Verify checks password against digest on a worker.
func (p *Pool) Verify(ctx context.Context, password, digest string) (bool, error) {
	res, err := p.submit(ctx, job{kind: jobVerify, password: password, digest: digest})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

// NeedsUpgrade reports whether digest should be replaced by a fresh hash. It
// runs on the caller's goroutine since it only decodes the digest. Hashers
// without [Upgrader] and undecodable digests report false.
func (p *Pool) NeedsUpgrade(digest string) bool {
	u, ok := p.hasher.(Upgrader)
	if !ok {
		return false
	}
	stale, err := u.NeedsUpgrade(digest)
	return err == nil && stale
}

func (p *Pool) submit(ctx context.Context, j job) (jobResult, error) {
	if p == nil || !p.started.Load() || p.closed.Load() {
		return jobResult{}, ErrPoolClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	j.result = make(chan jobResult, 1)

	select {
	case p.jobs <- j:
	case <-p.done:
		return jobResult{}, ErrPoolClosed
	case <-ctx.Done():
		return jobResult{}, ctx.Err()
	}

	select {
	case res := <-j.result:
		return res, nil
	case <-ctx.Done():
		return jobResult{}, ctx.Err()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			j.result <- p.execute(j)
		case <-p.done:
			return
		}
	}
}

func (p *Pool) execute(j job) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			res = jobResult{err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
		}
	}()

	switch j.kind {
	case jobHash:
		digest, err := p.hasher.Hash(j.password)
		return jobResult{digest: digest, err: err}
	default:
		ok, err := p.hasher.Verify(j.password, j.digest)
		return jobResult{ok: ok, err: err}
	}
}
