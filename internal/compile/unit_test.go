package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []State
		valid bool
	}{
		{"success path", []State{StatePrepared, StateRunning, StateSucceeded}, true},
		{"failure path", []State{StatePrepared, StateRunning, StateFailed}, true},
		{"skip after prepare", []State{StatePrepared, StateSkipped}, true},
		{"skip from pending", []State{StateSkipped}, true},
		{"run without prepare", []State{StateRunning}, false},
		{"no way back from skipped", []State{StateSkipped, StatePrepared}, false},
		{"no way back from succeeded", []State{StatePrepared, StateRunning, StateSucceeded, StateRunning}, false},
		{"failed stays failed", []State{StatePrepared, StateRunning, StateFailed, StateSucceeded}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUnit("n", "/a.tex")
			var err error
			for _, s := range tt.path {
				if err = u.transition(s); err != nil {
					break
				}
			}
			if tt.valid {
				assert.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], u.State)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateSkipped, StateSucceeded, StateFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{StatePending, StatePrepared, StateRunning} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestOutputPathMapCount(t *testing.T) {
	m := OutputPathMap{"a": {"/x": "1", "/y": "2"}, "b": {}}
	assert.Equal(t, 2, m.Count())
}
