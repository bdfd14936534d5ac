package registry

import (
	"fmt"
	"sync"
	"testing"

	"llm-finetune/core/models"
)

func TestRegistry_RegisterGetList(t *testing.T) {
	r := New()
	for _, id := range []string{"b", "a", "c"} {
		if _, err := r.Register(models.TrainingJob{ID: id}, nil); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	if _, err := r.Register(models.TrainingJob{ID: "a"}, nil); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	if e, ok := r.Get("a"); !ok || e.Job.ID != "a" {
		t.Fatalf("Get(a) = %v, %v", e, ok)
	}
	if _, ok := r.Get("zzz"); ok {
		t.Fatalf("Get(zzz) found an entry")
	}

	list := r.List()
	if len(list) != 3 || list[0].Job.ID != "a" || list[2].Job.ID != "c" {
		t.Fatalf("List() order wrong: %v", list)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d", r.Len())
	}
}

func TestEntry_StateTransitions(t *testing.T) {
	cases := []struct {
		name      string
		terminate bool
		code      int
		want      models.JobState
	}{
		{"exit zero", false, 0, models.JobStateSucceeded},
		{"exit non-zero", false, 3, models.JobStateFailed},
		{"terminated", true, -1, models.JobStateCancelled},
		{"terminated after finishing", true, 0, models.JobStateSucceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := New().Register(models.TrainingJob{ID: "j"}, nil)
			if got := e.State(); got != models.JobStateRunning {
				t.Fatalf("initial state = %s", got)
			}
			if tc.terminate && !e.RequestTerminate() {
				t.Fatalf("RequestTerminate on running job returned false")
			}
			e.MarkExited(tc.code)
			if got := e.State(); got != tc.want {
				t.Fatalf("state = %s, want %s", got, tc.want)
			}

			// Terminal states are final.
			e.MarkExited(0)
			if e.RequestTerminate() {
				t.Fatalf("RequestTerminate after exit returned true")
			}
			if got := e.State(); got != tc.want {
				t.Fatalf("state changed after terminal: %s", got)
			}
			select {
			case <-e.Done():
			default:
				t.Fatalf("Done() not closed after exit")
			}
		})
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(2)
		id := fmt.Sprintf("job-%02d", i)
		go func() {
			defer wg.Done()
			e, err := r.Register(models.TrainingJob{ID: id}, nil)
			if err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			e.MarkExited(0)
		}()
		go func() {
			defer wg.Done()
			if e, ok := r.Get(id); ok {
				_ = e.State()
			}
			_ = r.List()
		}()
	}
	wg.Wait()
	if r.Len() != 64 {
		t.Fatalf("Len() = %d", r.Len())
	}
}

func TestEntry_ExitedAtSetOnFirstExit(t *testing.T) {
	e, _ := New().Register(models.TrainingJob{ID: "j"}, nil)
	if !e.ExitedAt().IsZero() {
		t.Fatalf("ExitedAt before exit = %v", e.ExitedAt())
	}
	e.MarkExited(0)
	first := e.ExitedAt()
	if first.IsZero() {
		t.Fatal("ExitedAt not set")
	}
	e.MarkExited(1)
	if !e.ExitedAt().Equal(first) {
		t.Fatalf("second MarkExited moved ExitedAt to %v", e.ExitedAt())
	}
}
