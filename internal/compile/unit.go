package compile

import "fmt"

// State is the lifecycle state of one node × path compile unit.
type State string

const (
	StatePending   State = "pending"
	StatePrepared  State = "prepared"
	StateSkipped   State = "skipped"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSkipped || s == StateSucceeded || s == StateFailed
}

// allowed lists legal transitions. A unit can be skipped straight from
// pending when the engine declines or fails to prepare it.
var allowed = map[State][]State{
	StatePending:  {StatePrepared, StateSkipped, StateFailed},
	StatePrepared: {StateSkipped, StateRunning, StateFailed},
	StateRunning:  {StateSucceeded, StateFailed},
}

// Unit records what happened to one leaf path of one node.
type Unit struct {
	Node        string `json:"node"`
	SourcePath  string `json:"source_path"`
	State       State  `json:"state"`
	Fingerprint string `json:"fingerprint,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func newUnit(node, sourcePath string) *Unit {
	return &Unit{Node: node, SourcePath: sourcePath, State: StatePending}
}

func (u *Unit) transition(to State) error {
	for _, s := range allowed[u.State] {
		if s == to {
			u.State = to
			return nil
		}
	}
	return fmt.Errorf("illegal unit transition %s -> %s for %s:%s", u.State, to, u.Node, u.SourcePath)
}

// Diagnostic explains why a node or path produced no output.
type Diagnostic struct {
	Node    string `json:"node"`
	Path    string `json:"path,omitempty"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// OutputPathMap maps node key to source path to local artifact path.
// It only holds successful compilations.
type OutputPathMap map[string]map[string]string

// Count returns the number of artifacts in the map.
func (m OutputPathMap) Count() int {
	n := 0
	for _, paths := range m {
		n += len(paths)
	}
	return n
}

// Result is the settled outcome of a compile fan-out.
type Result struct {
	Outputs     OutputPathMap
	Units       []Unit
	Diagnostics []Diagnostic
}

// CountByState tallies units per state.
func (r *Result) CountByState() map[State]int {
	out := make(map[State]int)
	for _, u := range r.Units {
		out[u.State]++
	}
	return out
}
