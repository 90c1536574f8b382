// Package runner launches reconciliation runs in the background, at most one active run
// per merchant, and records their progress in the run ledger.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/catalog"
	"github.com/kashisync/kashisync/pkg/crawler"
	"github.com/kashisync/kashisync/pkg/merchant"
	"github.com/kashisync/kashisync/pkg/reconcile"
	"github.com/kashisync/kashisync/pkg/translate"
)

// ErrRunActive is returned when another process holds the merchant's run lock.
var ErrRunActive = errors.New("a run is already active for this merchant")

// ErrNoRuns is returned by Status for a merchant that has never run.
var ErrNoRuns = errors.New("merchant has no runs")

// Deps are the collaborators of one merchant's engine.
type Deps struct {
	Crawler    crawler.Crawler
	Translator translate.Translator
	Store      catalog.Store
}

// Factory builds the collaborators for a profile. It is called once per run.
type Factory func(p merchant.Profile) (Deps, error)

// Ledger persists run summaries and catalog writes. *storage.DB implements it.
type Ledger interface {
	SaveRun(ctx context.Context, s reconcile.Summary) error
	RecordChange(ctx context.Context, c reconcile.Change) error
	ListRuns(ctx context.Context, merchant string, limit int) ([]reconcile.Summary, error)
}

type Options struct {
	Merchants merchant.Registry
	Factory   Factory
	Ledger    Ledger // optional
	LockDir   string // optional; empty disables the cross-process lock
	Log       reconcile.Logger

	// OnChange is called after a change was recorded. Nil = no callback.
	OnChange func(reconcile.Change)
}

// Manager owns the active runs of every merchant.
type Manager struct {
	opts   Options
	log    reconcile.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool
	latest map[string]reconcile.Summary
}

func New(opts Options) (*Manager, error) {
	if opts.Merchants == nil || opts.Factory == nil {
		return nil, errors.New("runner: merchants and factory are required")
	}
	log := opts.Log
	if log == nil {
		log = utils.Log
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		active: map[string]bool{},
		latest: map[string]reconcile.Summary{},
	}, nil
}

// StartRun launches a run for name in the background. It returns false without error
// when the merchant already has an active run in this process, and ErrRunActive when
// another process holds the merchant's lock.
func (m *Manager) StartRun(name string) (bool, error) {
	p, err := m.opts.Merchants.Get(name)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	if m.active[name] {
		m.mu.Unlock()
		return false, nil
	}
	m.active[name] = true
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.active, name)
		m.mu.Unlock()
	}

	var lock *utils.RunLock
	if m.opts.LockDir != "" {
		lock, err = utils.NewRunLock(m.opts.LockDir, name)
		if err == nil {
			err = lock.TryLock()
		}
		if err != nil {
			release()
			if errors.Is(err, utils.ErrLocked) {
				return false, fmt.Errorf("%s: %w", name, ErrRunActive)
			}
			return false, err
		}
	}
	unlock := func() {
		if lock != nil {
			if err := lock.Unlock(); err != nil {
				m.log.Warnf("[%s] %v", name, err)
			}
		}
		release()
	}

	deps, err := m.opts.Factory(p)
	if err != nil {
		unlock()
		return false, fmt.Errorf("%s: %w", name, err)
	}
	runID := uuid.NewString()
	engine, err := reconcile.New(reconcile.Options{
		Config:     p.EngineConfig(),
		Crawler:    deps.Crawler,
		Translator: deps.Translator,
		Store:      deps.Store,
		Log:        m.log,
		OnProgress: func(s reconcile.Summary) { m.publish(s) },
		OnChange:   func(c reconcile.Change) { m.record(c) },
	})
	if err != nil {
		unlock()
		return false, fmt.Errorf("%s: %w", name, err)
	}

	m.publish(reconcile.NewSummary(runID, name).Snapshot())
	m.log.Infof("[%s] starting run %s", name, runID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unlock()
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("[%s] run %s panicked: %v\n%s", name, runID, r, debug.Stack())
				s, _ := m.current(name)
				s.Errors = append(s.Errors, fmt.Sprintf("panic: %v", r))
				s.Stop("run-level error")
				m.publish(s)
			}
		}()
		engine.Run(m.ctx, runID)
	}()
	return true, nil
}

// Run executes a run for name synchronously and returns its final summary.
func (m *Manager) Run(name string) (reconcile.Summary, error) {
	started, err := m.StartRun(name)
	if err != nil {
		return reconcile.Summary{}, err
	}
	if !started {
		return reconcile.Summary{}, fmt.Errorf("%s: %w", name, ErrRunActive)
	}
	m.Wait()
	s, _ := m.current(name)
	return s, nil
}

// Status returns a copy of the merchant's latest summary: the active or last run of this
// process, else the newest run in the ledger.
func (m *Manager) Status(ctx context.Context, name string) (reconcile.Summary, error) {
	if _, err := m.opts.Merchants.Get(name); err != nil {
		return reconcile.Summary{}, err
	}
	if s, ok := m.current(name); ok {
		return s, nil
	}
	if m.opts.Ledger != nil {
		runs, err := m.opts.Ledger.ListRuns(ctx, name, 1)
		if err != nil {
			return reconcile.Summary{}, err
		}
		if len(runs) > 0 {
			return runs[0], nil
		}
	}
	return reconcile.Summary{}, ErrNoRuns
}

// Active reports whether name has a run in progress in this process.
func (m *Manager) Active(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[name]
}

// Wait blocks until every started run has ended.
func (m *Manager) Wait() { m.wg.Wait() }

// Shutdown cancels the active runs and waits for them to stop.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) current(name string) (reconcile.Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.latest[name]
	if !ok {
		return reconcile.Summary{}, false
	}
	return s.Snapshot(), true
}

func (m *Manager) publish(s reconcile.Summary) {
	m.mu.Lock()
	m.latest[s.Merchant] = s.Snapshot()
	m.mu.Unlock()
	if m.opts.Ledger != nil {
		if err := m.opts.Ledger.SaveRun(context.Background(), s); err != nil {
			m.log.Warnf("[%s] could not save run %s: %v", s.Merchant, s.RunID, err)
		}
	}
}

func (m *Manager) record(c reconcile.Change) {
	if m.opts.Ledger != nil {
		if err := m.opts.Ledger.RecordChange(context.Background(), c); err != nil {
			m.log.Warnf("[%s] could not record %s of %s: %v", c.Merchant, c.Action, c.Key, err)
		}
	}
	if m.opts.OnChange != nil {
		m.opts.OnChange(c)
	}
}
