package parser

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
)

// Config holds pipeline tuning knobs
type Config struct {
	// QueueCap bounds each stage's backlog; a full queue blocks the
	// producer until the stage drains
	QueueCap int
	// RetryMax is the retry budget before a task degrades to fatal
	RetryMax int
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{QueueCap: 1000, RetryMax: 3}
}

// Events receives pipeline notifications. Callbacks run on the goroutine
// that caused them (a worker, or for OnStats also the caller of Push)
// and must not block.
type Events struct {
	// OnMediaCompleted fires once a file finished the whole chain
	OnMediaCompleted func(fileID, mediaID int64)
	// OnStats fires whenever the done/scheduled counters move
	OnStats func(done, scheduled uint32)
}

// Pipeline dispatches tasks through its ordered stages. One FIFO queue
// per stage, served by that stage's worker pool.
type Pipeline struct {
	cat    *catalog.Catalog
	cfg    Config
	events Events

	stages []Stage
	queues []chan *Task

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	stopped bool

	scheduled atomic.Uint32
	done      atomic.Uint32
	inflight  atomic.Int32

	idleMu   sync.Mutex
	idleCond *sync.Cond

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a pipeline over the given stages. Start must be called
// before pushing tasks.
func New(cat *catalog.Catalog, cfg Config, events Events, stages ...Stage) *Pipeline {
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = DefaultConfig().QueueCap
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultConfig().RetryMax
	}
	p := &Pipeline{
		cat:    cat,
		cfg:    cfg,
		events: events,
		stages: stages,
	}
	p.cond = sync.NewCond(&p.mu)
	p.idleCond = sync.NewCond(&p.idleMu)
	return p
}

// AddStage appends a stage to the chain. Only valid before Start.
func (p *Pipeline) AddStage(s Stage) {
	p.stages = append(p.stages, s)
}

// NbStages returns the length of the stage chain
func (p *Pipeline) NbStages() int { return len(p.stages) }

// Start spins up the worker pools and re-enqueues files whose previous
// run did not complete. Recovery is idempotent because every stage's
// writes are upserts keyed by stable identifiers.
func (p *Pipeline) Start() error {
	if len(p.stages) == 0 {
		return fmt.Errorf("pipeline has no stages")
	}
	p.quit = make(chan struct{})
	p.queues = make([]chan *Task, len(p.stages))
	for i := range p.stages {
		p.queues[i] = make(chan *Task, p.cfg.QueueCap)
	}
	for i, stage := range p.stages {
		threads := stage.NbThreads()
		if threads <= 0 {
			threads = 1
		}
		for w := 0; w < threads; w++ {
			p.wg.Add(1)
			go p.worker(i, stage)
		}
	}
	return p.restore()
}

// restore re-enqueues files with an incomplete parser_step at their
// stored stage
func (p *Pipeline) restore() error {
	files, err := p.cat.IncompleteFiles()
	if err != nil {
		return fmt.Errorf("failed to load incomplete files: %w", err)
	}
	for _, f := range files {
		step := f.ParserStep
		if step >= len(p.stages) {
			// the chain shrank since this file was parsed
			if err := p.cat.SetFileParserStep(p.cat.Store(), f.ID, catalog.ParserStepCompleted); err != nil {
				return err
			}
			continue
		}
		mrl, err := p.resolveMrl(f)
		if err != nil {
			util.DebugLog("parser: skipping unresolvable file %d: %v", f.ID, err)
			continue
		}
		p.push(&Task{FileID: f.ID, MediaID: f.MediaID, Mrl: mrl, File: f, currentStep: step})
	}
	if len(files) > 0 {
		util.InfoLog("parser: restored %d unfinished files", len(files))
	}
	return nil
}

// resolveMrl rebuilds a full MRL from a stored file row. Files on
// removable devices store device-relative paths.
func (p *Pipeline) resolveMrl(f *catalog.File) (string, error) {
	folder, err := p.cat.FolderByID(f.FolderID)
	if err != nil || folder == nil {
		return "", fmt.Errorf("folder %d not found", f.FolderID)
	}
	dev, err := p.cat.DeviceByID(folder.DeviceID)
	if err != nil || dev == nil {
		return "", fmt.Errorf("device %d not found", folder.DeviceID)
	}
	if !dev.IsPresent {
		return "", util.ErrDeviceMissing
	}
	if !dev.IsRemovable {
		return f.Mrl, nil
	}
	return "file://" + dev.LastMountpoint + "/" + f.Mrl, nil
}

// Push schedules a task at its current stage. Blocks when the stage
// queue is full; that is the back-pressure contract.
func (p *Pipeline) Push(t *Task) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.push(t)
}

func (p *Pipeline) push(t *Task) {
	p.scheduled.Add(1)
	p.inflight.Add(1)
	p.notifyStats()
	p.enqueue(t.currentStep, t)
}

// enqueue blocks until the stage accepts the task or the pipeline
// stops. The bounded queue is the back-pressure contract.
func (p *Pipeline) enqueue(index int, t *Task) {
	select {
	case p.queues[index] <- t:
	case <-p.quit:
		// the task stays incomplete on disk; the next start re-enqueues
		// it at its stored step
		p.taskDone()
	}
}

func (p *Pipeline) worker(index int, stage Stage) {
	defer p.wg.Done()
	for {
		var task *Task
		select {
		case <-p.quit:
			return
		case task = <-p.queues[index]:
		}
		if !p.waitRunnable() {
			p.taskDone()
			return
		}

		task.stepSaved = false
		status := stage.Run(task)

		switch status {
		case StatusSuccess:
			p.advance(index, task)
		case StatusRetry:
			task.retries++
			if task.retries >= p.cfg.RetryMax {
				util.WarnLog("parser: %s exhausted retries for file %d", stage.Name(), task.FileID)
				p.fail(task)
				break
			}
			p.cat.SetFileRetryCount(p.cat.Store(), task.FileID, task.retries)
			// re-enqueue asynchronously; a blocking send from our own
			// queue's consumer would deadlock when the queue is full
			p.wg.Add(1)
			go func(t *Task) {
				defer p.wg.Done()
				p.enqueue(index, t)
			}(task)
		case StatusFatal:
			util.WarnLog("parser: %s failed fatally for file %d", stage.Name(), task.FileID)
			p.fail(task)
		case StatusDiscarded:
			p.fail(task)
		}
	}
}

// advance moves a task past a successful stage, persisting the cursor
// unless the stage already did inside its own transaction
func (p *Pipeline) advance(index int, task *Task) {
	next := index + 1
	last := next >= len(p.stages)

	if !task.stepSaved {
		step := next
		if last {
			step = catalog.ParserStepCompleted
		}
		if err := p.cat.SetFileParserStep(p.cat.Store(), task.FileID, step); err != nil {
			util.ErrorLog("parser: failed to persist step for file %d: %v", task.FileID, err)
		}
	}

	if last {
		p.done.Add(1)
		p.notifyStats()
		if p.events.OnMediaCompleted != nil {
			p.events.OnMediaCompleted(task.FileID, task.MediaID)
		}
		p.taskDone()
		return
	}

	task.currentStep = next
	task.retries = 0
	p.enqueue(next, task)
}

func (p *Pipeline) fail(task *Task) {
	if err := p.cat.SetFileParserStep(p.cat.Store(), task.FileID, catalog.ParserStepFatal); err != nil {
		util.ErrorLog("parser: failed to mark file %d fatal: %v", task.FileID, err)
	}
	p.done.Add(1)
	p.notifyStats()
	p.taskDone()
}

func (p *Pipeline) taskDone() {
	if p.inflight.Add(-1) == 0 {
		p.idleMu.Lock()
		p.idleCond.Broadcast()
		p.idleMu.Unlock()
	}
}

func (p *Pipeline) notifyStats() {
	if p.events.OnStats != nil {
		p.events.OnStats(p.done.Load(), p.scheduled.Load())
	}
}

// waitRunnable blocks while the pipeline is paused. Returns false when
// the pipeline stopped instead.
func (p *Pipeline) waitRunnable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.paused && !p.stopped {
		p.cond.Wait()
	}
	return !p.stopped
}

// Pause flips workers into a drain state: each finishes its current
// task, then waits
func (p *Pipeline) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume wakes paused workers
func (p *Pipeline) Resume() {
	p.mu.Lock()
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// WaitIdle blocks until no task is scheduled or running, or the timeout
// expires. Returns true when idle.
func (p *Pipeline) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		p.idleMu.Lock()
		p.idleCond.Broadcast()
		p.idleMu.Unlock()
	})
	defer timer.Stop()

	p.idleMu.Lock()
	defer p.idleMu.Unlock()
	for p.inflight.Load() != 0 {
		if time.Now().After(deadline) {
			return false
		}
		p.idleCond.Wait()
	}
	return true
}

// Stop drains the pipeline with a bounded grace period, then releases
// the workers. Tasks still queued stay incomplete on disk and are
// re-enqueued on the next start.
func (p *Pipeline) Stop(grace time.Duration) {
	if !p.WaitIdle(grace) {
		util.WarnLog("parser: shutdown grace expired with tasks outstanding")
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()
}

// Stats returns the running completion counters
func (p *Pipeline) Stats() (done, scheduled uint32) {
	return p.done.Load(), p.scheduled.Load()
}
