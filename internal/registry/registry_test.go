package registry

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightmind/extractd/internal/stage"
)

type fakeStage struct {
	name string
	deps []string
}

func (s *fakeStage) Name() string           { return s.name }
func (s *fakeStage) Dependencies() []string { return s.deps }
func (s *fakeStage) Critical() bool         { return false }

func (s *fakeStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	return nil, nil
}

func mustBuild(t *testing.T, stages ...*fakeStage) *Registry {
	t.Helper()
	r := New()
	for _, s := range stages {
		require.NoError(t, r.Register(s))
	}
	return r
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeStage{name: "a"}))

	err := r.Register(&fakeStage{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateStage)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	assert.Error(t, New().Register(&fakeStage{}))
}

func TestResolveOrderRespectsDependencies(t *testing.T) {
	r := mustBuild(t,
		&fakeStage{name: "validate", deps: []string{"extract", "classify"}},
		&fakeStage{name: "extract", deps: []string{"classify"}},
		&fakeStage{name: "classify"},
	)

	order, err := r.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "extract", "validate"}, order)
}

func TestResolveOrderDeterministicTieBreak(t *testing.T) {
	r := mustBuild(t,
		&fakeStage{name: "zeta"},
		&fakeStage{name: "alpha"},
		&fakeStage{name: "mid"},
	)

	order, err := r.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, order)
}

func TestResolveOrderPropertyRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 3 + rng.Intn(10)
		fakes := make([]*fakeStage, n)
		for i := range fakes {
			s := &fakeStage{name: fmt.Sprintf("s%02d", i)}
			// Edges only from lower to higher indices, so the graph is
			// acyclic by construction.
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					s.deps = append(s.deps, fmt.Sprintf("s%02d", j))
				}
			}
			fakes[i] = s
		}
		r := mustBuild(t, fakes...)

		order, err := r.ResolveOrder()
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, name := range order {
			pos[name] = i
		}
		for _, s := range fakes {
			for _, dep := range s.deps {
				assert.Less(t, pos[dep], pos[s.name],
					"trial %d: %s must precede %s", trial, dep, s.name)
			}
		}
	}
}

func TestResolveOrderDetectsCycle(t *testing.T) {
	r := mustBuild(t,
		&fakeStage{name: "a", deps: []string{"c"}},
		&fakeStage{name: "b", deps: []string{"a"}},
		&fakeStage{name: "c", deps: []string{"b"}},
	)

	_, err := r.ResolveOrder()
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestResolveOrderDetectsSelfDependency(t *testing.T) {
	r := mustBuild(t, &fakeStage{name: "a", deps: []string{"a"}})

	_, err := r.ResolveOrder()
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestResolveOrderDetectsUnknownDependency(t *testing.T) {
	r := mustBuild(t, &fakeStage{name: "a", deps: []string{"ghost"}})

	_, err := r.ResolveOrder()
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestResolveOrderFreezesRegistry(t *testing.T) {
	r := mustBuild(t, &fakeStage{name: "a"})

	first, err := r.ResolveOrder()
	require.NoError(t, err)

	err = r.Register(&fakeStage{name: "late"})
	assert.ErrorIs(t, err, ErrFrozen)

	// Cached order is stable and callers get independent copies.
	second, err := r.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	second[0] = "mutated"
	third, err := r.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, "a", third[0])
}

func TestNamesSorted(t *testing.T) {
	r := mustBuild(t,
		&fakeStage{name: "c"},
		&fakeStage{name: "a"},
		&fakeStage{name: "b"},
	)
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}
