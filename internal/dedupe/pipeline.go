package dedupe

import "context"

// Operation names the three dedupe request kinds the pipeline can
// carry, mirroring REQUEST_INDEX/REQUEST_UPDATE/REQUEST_QUERY
// (request.h's enum request_action, restricted to the data-path
// subset; REQUEST_DELETE and the REQUEST_CONTROL barrier/announce
// actions are handled directly through Index rather than this queue).
type Operation int

const (
	// OpPost looks up name and, regardless of outcome, records advice
	// for it (the common dedupe-on-write path).
	OpPost Operation = iota
	// OpQuery looks up name without recording anything.
	OpQuery
	// OpUpdate overwrites any existing advice for name.
	OpUpdate
)

// Triage is the cheap, synchronous pre-check every request goes
// through before it is handed to the (potentially blocking) index
// stage - grounded on lookupMasterIndexName/master_index_triage,
// which lets the caller pick a zone and decide whether a sampled
// chapter needs to be faulted in before the real lookup proceeds.
type Triage struct {
	Zone             int
	IsSample         bool
	InSampledChapter bool
	VirtualChapter   uint64
}

// TriageFunc computes a Triage for name without touching the index's
// lock (it only consults the cheap routing structures).
type TriageFunc func(name RecordName) Triage

// Request is one dedupe pipeline request.
type Request struct {
	Operation Operation
	Name      RecordName
	Advice    Advice
}

// Result is what a Request produced.
type Result struct {
	Request Request
	Advice  Advice
	Found   bool
	Err     error
}

// Callback receives a completed Request's Result on the goroutine
// running Pipeline.Run - analogous to the
// original's callback invoked once request processing finishes
// (request.h's uds_callback).
type Callback func(Result)

// Pipeline runs dedupe requests through triage, then a single index
// stage (the index's own mutex serializes concurrent zone access),
// then delivers results to a callback - the Go shape of UDS's
// triage -> index-zone-queue -> callback-queue request flow, collapsed
// from three thread pools to one request channel drained by Run, which
// calls the callback directly on its own goroutine; this package does
// not own zone threads (internal/zone does).
type Pipeline struct {
	index  *Index
	triage TriageFunc

	requests chan Request
	done     chan struct{}
}

// NewPipeline starts a pipeline backed by index. Call Run to begin
// processing; Close stops it.
func NewPipeline(index *Index, triage TriageFunc, queueDepth int) *Pipeline {
	return &Pipeline{
		index:    index,
		triage:   triage,
		requests: make(chan Request, queueDepth),
		done:     make(chan struct{}),
	}
}

// Submit enqueues req for processing; it blocks if the pipeline's
// queue is full, matching the bounded funnel-queue backpressure in the
// original's request queue.
func (p *Pipeline) Submit(ctx context.Context, req Request) error {
	select {
	case p.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return context.Canceled
	}
}

// Run drains the request queue until the context is canceled or Close
// is called, invoking cb for each completed request. Intended to be
// run on its own goroutine.
func (p *Pipeline) Run(ctx context.Context, cb Callback) {
	for {
		select {
		case req := <-p.requests:
			cb(p.process(req))
		case <-ctx.Done():
			return
		case <-p.done:
			return
		}
	}
}

// Close stops a running Pipeline; Submit calls after Close return
// context.Canceled.
func (p *Pipeline) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func (p *Pipeline) process(req Request) Result {
	if p.triage != nil {
		p.triage(req.Name)
	}

	switch req.Operation {
	case OpQuery:
		advice, found := p.index.Query(req.Name)
		return Result{Request: req, Advice: advice, Found: found}

	case OpUpdate:
		if err := p.index.Put(req.Name, req.Advice); err != nil {
			return Result{Request: req, Err: err}
		}
		return Result{Request: req, Advice: req.Advice, Found: true}

	default: // OpPost
		advice, found := p.index.Query(req.Name)
		if err := p.index.Put(req.Name, req.Advice); err != nil {
			return Result{Request: req, Err: err}
		}
		return Result{Request: req, Advice: advice, Found: found}
	}
}
