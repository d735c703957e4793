package processing

import (
	"sync/atomic"
)

// Observer receives progress events from a State. Calls happen on the goroutine that drives the
// generation.
type Observer interface {
	OnStep(step, steps int)
	OnJob(jobNo, jobCount int)
}

// State is the run-state of one generation request: job and sampling-step counters plus an
// interrupt flag the generating loop polls between steps.
type State struct {
	Job           string
	JobCount      int
	JobNo         int
	SamplingStep  int
	SamplingSteps int

	interrupted atomic.Bool

	observers []Observer
}

func NewState(observers ...Observer) *State {
	return &State{observers: observers}
}

func (s *State) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// BeginSampling resets the step counter for a new sampling loop of the given length.
func (s *State) BeginSampling(steps int) {
	s.SamplingSteps = steps
	s.SamplingStep = 0
}

// Step advances the sampling-step counter by one.
func (s *State) Step() {
	s.SamplingStep++
	for _, o := range s.observers {
		o.OnStep(s.SamplingStep, s.SamplingSteps)
	}
}

// NextJob marks the current job as complete.
func (s *State) NextJob() {
	s.JobNo++
	s.SamplingStep = 0
	for _, o := range s.observers {
		o.OnJob(s.JobNo, s.JobCount)
	}
}

// Interrupt asks the running loop to stop after the current step. Safe for concurrent use.
func (s *State) Interrupt() { s.interrupted.Store(true) }

func (s *State) Interrupted() bool { return s.interrupted.Load() }

// Progress is the fraction of the overall request that is complete.
func (s *State) Progress() float64 {
	if s.JobCount <= 0 {
		return 0
	}
	done := float64(s.JobNo)
	if s.SamplingSteps > 0 {
		done += float64(s.SamplingStep) / float64(s.SamplingSteps)
	}
	return min(1, done/float64(s.JobCount))
}
