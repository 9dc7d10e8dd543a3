package truetime

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a Clock that only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource answers queries from a scripted list of results. The last
// result repeats once the script is exhausted.
type fakeSource struct {
	mu      sync.Mutex
	results []fakeResult
	calls   int
	// block, when set, is waited on before answering.
	block chan struct{}

	inFlight    int
	maxInFlight int
}

type fakeResult struct {
	sample Sample
	err    error
}

func (s *fakeSource) Name() string { return "fake.ntp" }

func (s *fakeSource) Query(ctx context.Context) (Sample, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	r := s.results[i]
	return r.sample, r.err
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// memJournal collects appended observations.
type memJournal struct {
	mu   sync.Mutex
	obs  []Observation
	fail error
}

func (j *memJournal) Append(o Observation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.obs = append(j.obs, o)
	return nil
}

func (j *memJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.obs)
}
