package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justeat/JustSupport/internal/pkg/distlock"
	"github.com/justeat/JustSupport/internal/pkg/logger"
)

// ErrLocked means another propagation run holds the lock.
var ErrLocked = errors.New("syncer: propagation already running")

// Report is the combined result of one propagation run.
type Report struct {
	Outbound OutboundReport `json:"outbound"`
	Inbound  InboundReport  `json:"inbound"`
}

// Engine runs outbound then inbound propagation under a run lock.
type Engine struct {
	outbound *Outbound
	inbound  *Inbound
	lock     distlock.DistLock
}

// NewEngine wires both propagators. A nil lock disables locking.
func NewEngine(outbound *Outbound, inbound *Inbound, lock distlock.DistLock) *Engine {
	return &Engine{outbound: outbound, inbound: inbound, lock: lock}
}

// Propagate mirrors pending communications to Jira and then relays Jira
// replies to AWS. A failed outbound query does not skip the inbound pass.
func (e *Engine) Propagate(ctx context.Context) (Report, error) {
	var report Report

	if e.lock != nil {
		ok, err := e.lock.Acquire(ctx)
		if err != nil {
			return report, fmt.Errorf("acquiring propagation lock: %w", err)
		}
		if !ok {
			logger.Warn("propagation skipped, another run holds the lock")
			return report, ErrLocked
		}
		defer func() {
			if err := e.lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Error("releasing propagation lock failed", "error", err)
			}
		}()
		if ext, ok := e.lock.(distlock.Extender); ok {
			defer keepAlive(ctx, ext)()
		}
	}

	var errs []error
	out, err := e.outbound.Run(ctx)
	report.Outbound = out
	if err != nil {
		logger.Error("outbound propagation failed", "error", err)
		errs = append(errs, err)
	}

	in, err := e.inbound.Run(ctx)
	report.Inbound = in
	if err != nil {
		logger.Error("inbound propagation failed", "error", err)
		errs = append(errs, err)
	}

	return report, errors.Join(errs...)
}

// keepAlive renews ext every third of its TTL until the returned stop
// function is called. stop waits for the renewer to exit.
func keepAlive(ctx context.Context, ext distlock.Extender) (stop func()) {
	ttl := ext.TTL()
	if ttl <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := ext.Extend(ctx, ttl)
				switch {
				case err != nil:
					logger.Warn("extending propagation lock failed", "error", err)
				case !held:
					logger.Warn("propagation lock lost before the run finished")
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
