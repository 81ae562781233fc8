package syncx

import (
	"sync"
	"testing"
)

type linkState struct {
	up    bool
	audio bool
}

func TestGetReturnsCopy(t *testing.T) {
	g := NewGuard(linkState{up: true})

	s := g.Get()
	s.audio = true
	if g.Get().audio {
		t.Error("changing a copy must not change the guarded value")
	}
}

func TestView(t *testing.T) {
	g := NewGuard(linkState{up: true})

	if !View(g, func(s linkState) bool { return s.up && !s.audio }) {
		t.Error("View should see the initial state")
	}
}

func TestMutateReturnsEffects(t *testing.T) {
	g := NewGuard(linkState{up: true})
	openAudio := func(s *linkState) bool {
		if s.audio || !s.up {
			return false
		}
		s.audio = true
		return true
	}

	if !Mutate(g, openAudio) {
		t.Error("first Mutate should report a change")
	}
	if Mutate(g, openAudio) {
		t.Error("repeated Mutate should be a no-op")
	}
	if !g.Get().audio {
		t.Error("audio should be open")
	}
}

func TestConcurrentMutateAndView(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Mutate(g, func(v *int) struct{} { *v++; return struct{}{} })
		}()
		go func() {
			defer wg.Done()
			_ = View(g, func(v int) int { return v })
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}
