package room

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type AgentResult struct {
	Agent       string `json:"agent"`
	Success     bool   `json:"success"`
	RoundNumber int    `json:"roundNumber,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Report struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"-"`
	Processed int           `json:"processed"`
	Results   []AgentResult `json:"results"`
}

type SchedulerStats struct {
	Runs            uint64
	Skipped         uint64
	Simulated       uint64
	Failed          uint64
	LastRunUnix     int64
	Running         bool
	LastRunDuration time.Duration
}

// Scheduler simulates every agent whose cooldown has elapsed. Only one run
// is in flight at a time; a trigger that arrives during a run is skipped.
type Scheduler struct {
	sim          *Simulator
	store        Store
	cooldown     time.Duration
	agentTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time

	running atomic.Bool

	runs      atomic.Uint64
	skipped   atomic.Uint64
	simulated atomic.Uint64
	failed    atomic.Uint64
	lastRun   atomic.Int64

	mu      sync.Mutex
	lastDur time.Duration
}

func NewScheduler(sim *Simulator, st Store, cooldown, agentTimeout time.Duration, logger *log.Logger) *Scheduler {
	return &Scheduler{
		sim:          sim,
		store:        st,
		cooldown:     cooldown,
		agentTimeout: agentTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Scheduler) Cooldown() time.Duration { return s.cooldown }

// RunOnce simulates all stale agents sequentially. ok is false when another
// run was already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (rep Report, ok bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return Report{}, false, nil
	}
	defer s.running.Store(false)

	start := s.now().UTC()
	rep.StartedAt = start
	rep.Results = []AgentResult{}
	s.runs.Add(1)
	s.lastRun.Store(start.Unix())

	agents, err := s.store.StaleAgents(ctx, start.Add(-s.cooldown))
	if err != nil {
		return rep, true, err
	}
	rep.Processed = len(agents)
	for _, a := range agents {
		if ctx.Err() != nil {
			break
		}
		actx := ctx
		var cancel context.CancelFunc = func() {}
		if s.agentTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, s.agentTimeout)
		}
		res, err := s.sim.SimulateAgent(actx, a)
		cancel()
		if err != nil {
			s.failed.Add(1)
			s.printf("simulate agent=%s failed: %v", a.Name, err)
			rep.Results = append(rep.Results, AgentResult{Agent: a.Name, Error: err.Error()})
			continue
		}
		s.simulated.Add(1)
		s.printf("simulate agent=%s round=%d photo=%s", a.Name, res.LifeDay.RoundNumber, res.PhotoSource)
		rep.Results = append(rep.Results, AgentResult{Agent: a.Name, Success: true, RoundNumber: res.LifeDay.RoundNumber})
	}
	rep.Duration = s.now().Sub(start)
	s.mu.Lock()
	s.lastDur = rep.Duration
	s.mu.Unlock()
	return rep, true, nil
}

// Start runs RunOnce every interval until ctx is done. With runNow the
// first run happens immediately.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, runNow bool) {
	if interval <= 0 {
		interval = time.Hour
	}
	run := func() {
		rep, ok, err := s.RunOnce(ctx)
		switch {
		case err != nil:
			s.printf("scheduler run failed: %v", err)
		case !ok:
			s.printf("scheduler run skipped: previous run still active")
		case rep.Processed > 0:
			s.printf("scheduler run processed=%d took=%s", rep.Processed, rep.Duration.Round(time.Millisecond))
		}
	}
	if runNow {
		run()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}

func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	d := s.lastDur
	s.mu.Unlock()
	return SchedulerStats{
		Runs:            s.runs.Load(),
		Skipped:         s.skipped.Load(),
		Simulated:       s.simulated.Load(),
		Failed:          s.failed.Load(),
		LastRunUnix:     s.lastRun.Load(),
		Running:         s.running.Load(),
		LastRunDuration: d,
	}
}

func (s *Scheduler) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
