package hal

import (
	"context"
	"errors"
	"time"
)

// measureWorker serialises device access. Trigger and Collect run
// split-phase: after Trigger the adaptor parks in the collect list
// until its wait elapses, so a slow device never blocks the queue.
type measureWorker struct {
	cfg  WorkerConfig
	reqQ chan MeasureReq
	sink chan<- Result
}

type collectItem struct {
	adaptor Adaptor
	due     time.Time
	retries int
}

const maxCollectRetries = 3

func newMeasureWorker(cfg WorkerConfig, sink chan<- Result) *measureWorker {
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 8
	}
	if cfg.MaxCollects <= 0 {
		cfg.MaxCollects = 4
	}
	if cfg.DefaultRetry <= 0 {
		cfg.DefaultRetry = 50 * time.Millisecond
	}
	return &measureWorker{
		cfg:  cfg,
		reqQ: make(chan MeasureReq, cfg.QueueLen),
		sink: sink,
	}
}

// Submit queues a measurement. Priority requests wait SubmitWait for a
// slot; background requests are dropped when the queue is full.
func (w *measureWorker) Submit(req MeasureReq) bool {
	if req.Prio && w.cfg.SubmitWait > 0 {
		t := time.NewTimer(w.cfg.SubmitWait)
		defer t.Stop()
		select {
		case w.reqQ <- req:
			return true
		case <-t.C:
			return false
		}
	}
	select {
	case w.reqQ <- req:
		return true
	default:
		return false
	}
}

func (w *measureWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *measureWorker) loop(ctx context.Context) {
	var pending []collectItem
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	rearm := func() {
		timer.Stop()
		if len(pending) == 0 {
			return
		}
		next := pending[0].due
		for _, it := range pending[1:] {
			if it.due.Before(next) {
				next = it.due
			}
		}
		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-w.reqQ:
			if len(pending) >= w.cfg.MaxCollects {
				w.emit(req.Adaptor, nil, errors.New("hal: worker saturated"))
				continue
			}
			wait, err := req.Adaptor.Trigger(ctx)
			if err != nil {
				w.emit(req.Adaptor, nil, err)
				continue
			}
			if wait <= 0 {
				w.collect(ctx, &pending, collectItem{adaptor: req.Adaptor, due: time.Now()})
			} else {
				pending = append(pending, collectItem{adaptor: req.Adaptor, due: time.Now().Add(wait)})
			}
			rearm()

		case <-timer.C:
			now := time.Now()
			kept := pending[:0]
			for _, it := range pending {
				if it.due.After(now) {
					kept = append(kept, it)
					continue
				}
				w.collect(ctx, &kept, it)
			}
			pending = kept
			rearm()
		}
	}
}

// collect runs one Collect, requeueing onto dst on ErrNotReady.
func (w *measureWorker) collect(ctx context.Context, dst *[]collectItem, it collectItem) {
	samples, err := it.adaptor.Collect(ctx)
	if errors.Is(err, ErrNotReady) && it.retries < maxCollectRetries {
		retry := it.adaptor.RetryInterval()
		if retry <= 0 {
			retry = w.cfg.DefaultRetry
		}
		it.due = time.Now().Add(retry)
		it.retries++
		*dst = append(*dst, it)
		return
	}
	w.emit(it.adaptor, samples, err)
}

func (w *measureWorker) emit(a Adaptor, samples []Sample, err error) {
	select {
	case w.sink <- Result{DeviceID: a.ID(), Samples: samples, Err: err, At: time.Now()}:
	default:
		println("Warn: hal: result sink full, dropping", a.ID())
	}
}
