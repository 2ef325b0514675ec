package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/plume/particle"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the state of one particle group for debugging.
type Snapshot struct {
	Version int    `json:"version"`
	Group   string `json:"group"`
	Species string `json:"species"`

	Tick       int32   `json:"tick"`
	SimTimeSec float64 `json:"sim_time"`

	Capacity  int               `json:"capacity"`
	Stale     bool              `json:"stale,omitempty"`
	Totals    StepTotals        `json:"totals"`
	Layout    LayoutState       `json:"layout"`
	States    map[string]string `json:"states"`
	Particles []ParticleState   `json:"particles"`
}

// StepTotals is the JSON form of particle.StepStats.
type StepTotals struct {
	Spawned  int `json:"spawned"`
	Recycled int `json:"recycled"`
	Died     int `json:"died"`
	Dropped  int `json:"dropped"`
}

// LayoutState describes the packed per-particle block.
type LayoutState struct {
	PackedByteSize int            `json:"packed_byte_size"`
	Offsets        map[string]int `json:"offsets"`
	Derived        []int          `json:"derived_offsets,omitempty"`
}

// ParticleState holds one live particle.
type ParticleState struct {
	Slot     int                `json:"slot"`
	Position [3]float64         `json:"position"`
	Velocity [3]float64         `json:"velocity"`
	Age      float64            `json:"age"`
	Life     float64            `json:"life"` // 0 when Immortal
	Immortal bool               `json:"immortal,omitempty"`
	Values   map[string]float64 `json:"values"`
}

// TakeSnapshot captures g's layout and live particles. Attribute values are
// read for every attribute whose state is not Disabled.
func TakeSnapshot(g *particle.Group, tick int32, simTime float64) *Snapshot {
	m := g.Model()
	layout := g.Layout()
	totals := g.Totals()

	snap := &Snapshot{
		Version:    SnapshotVersion,
		Group:      g.Name(),
		Species:    m.Name,
		Tick:       tick,
		SimTimeSec: simTime,
		Capacity:   g.Capacity(),
		Stale:      g.Stale(),
		Totals: StepTotals{
			Spawned:  totals.Spawned,
			Recycled: totals.Recycled,
			Died:     totals.Died,
			Dropped:  totals.Dropped,
		},
		Layout: LayoutState{
			PackedByteSize: layout.PackedByteSize,
			Offsets:        make(map[string]int),
			Derived:        append([]int(nil), layout.DerivedOffsets...),
		},
		States:    make(map[string]string),
		Particles: make([]ParticleState, 0, g.Count()),
	}

	var active []particle.Attribute
	for a := particle.Attribute(0); a < particle.NumAttributes; a++ {
		if off := layout.Offset(a); off != particle.NoOffset {
			snap.Layout.Offsets[a.String()] = off
		}
		st := m.State(a)
		snap.States[a.String()] = st.String()
		if st != particle.Disabled {
			active = append(active, a)
		}
	}

	for p := range g.Particles() {
		ps := ParticleState{
			Slot:     p.Slot(),
			Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
			Velocity: [3]float64{p.Velocity.X, p.Velocity.Y, p.Velocity.Z},
			Age:      p.Age,
			Life:     p.Life,
			Values:   make(map[string]float64, len(active)),
		}
		if math.IsInf(p.Life, 1) {
			ps.Life = 0
			ps.Immortal = true
		}
		for _, a := range active {
			ps.Values[a.String()] = g.ReadValue(p, a)
		}
		snap.Particles = append(snap.Particles, ps)
	}
	return snap
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	// Sanitize group name for filename
	group := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, snapshot.Group)
	name := fmt.Sprintf("snapshot_%d_%s.json", snapshot.Tick, group)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}
