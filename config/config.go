// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/pthm-cable/plume/particle"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Validation errors. Load wraps them with the offending entry.
var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrUnknownState     = errors.New("unknown parameter state")
	ErrUnknownSpecies   = errors.New("unknown species")
	ErrUnknownAffector  = errors.New("unknown affector type")
	ErrUnknownNode      = errors.New("unknown node")
	ErrUnknownZone      = errors.New("unknown zone type")
	ErrDuplicateName    = errors.New("duplicate name")
)

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Capacity   CapacityConfig   `yaml:"capacity"`
	Species    []SpeciesConfig  `yaml:"species"`
	Nodes      []NodeConfig     `yaml:"nodes"`
	Emitters   []EmitterConfig  `yaml:"emitters"`
	Affectors  []AffectorConfig `yaml:"affectors"`
	Systems    []SystemConfig   `yaml:"systems"`
	Viewer     ViewerConfig     `yaml:"viewer"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a YAML-friendly three-component vector.
type Vec3 [3]float64

// R3 converts v to an r3.Vec.
func (v Vec3) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// SimulationConfig holds stepping parameters.
type SimulationConfig struct {
	DT       float64 `yaml:"dt"`        // Seconds per tick
	Seed     int64   `yaml:"seed"`      // Base seed for group random sources
	MaxTicks int32   `yaml:"max_ticks"` // Headless run length, 0 = unbounded
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`          // Seconds per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"` // Ticks in the rolling perf window
	SnapshotEvery       int     `yaml:"snapshot_every"`        // Windows between group snapshots, 0 = off
}

// CapacityConfig holds pool sizing parameters for species without a fixed capacity.
type CapacityConfig struct {
	Quantile float64 `yaml:"quantile"` // Lifetime quantile for auto sizing
	Min      uint32  `yaml:"min"`      // Floor applied to auto-sized pools
}

// AttributeConfig configures one attribute of a species.
type AttributeConfig struct {
	State  string    `yaml:"state"`
	Values []float64 `yaml:"values,omitempty"`
	Curve  string    `yaml:"curve,omitempty"` // e.g. "0,1 0.5,0.8 1,0 EaseOut"
}

// SpeciesConfig defines a particle model.
type SpeciesConfig struct {
	Name                string                     `yaml:"name"`
	Lifetime            [2]float64                 `yaml:"lifetime"` // [min, max] seconds
	Immortal            bool                       `yaml:"immortal,omitempty"`
	Gravity             Vec3                       `yaml:"gravity,omitempty"`
	Capacity            uint32                     `yaml:"capacity,omitempty"` // 0 = auto
	AllowMultipleGroups bool                       `yaml:"allow_multiple_groups,omitempty"`
	Attributes          map[string]AttributeConfig `yaml:"attributes"`
}

// OrbitConfig moves a node around a center over time.
type OrbitConfig struct {
	Center Vec3    `yaml:"center"`
	Axis   Vec3    `yaml:"axis"`
	Radius float64 `yaml:"radius"`
	Speed  float64 `yaml:"speed"` // Radians per second
	Phase  float64 `yaml:"phase"`
}

// NodeConfig defines a scene node. Nodes without a parent are roots;
// parents must be declared before their children.
type NodeConfig struct {
	Name     string       `yaml:"name"`
	Parent   string       `yaml:"parent,omitempty"`
	Position Vec3         `yaml:"position"`
	Axis     Vec3         `yaml:"axis,omitempty"`  // Rotation axis
	Angle    float64      `yaml:"angle,omitempty"` // Rotation in degrees
	Scale    Vec3         `yaml:"scale,omitempty"` // Zero components default to 1
	Orbit    *OrbitConfig `yaml:"orbit,omitempty"`
}

// ZoneConfig defines the spawn zone of an emitter.
type ZoneConfig struct {
	Type   string `yaml:"type"` // point or box
	Center Vec3   `yaml:"center"`
	Half   Vec3   `yaml:"half,omitempty"` // Box half extents
}

// EmitterConfig defines a cone emitter attached to a node.
type EmitterConfig struct {
	Name      string     `yaml:"name"`
	Node      string     `yaml:"node"`
	Species   string     `yaml:"species"`
	Rate      float64    `yaml:"rate"` // Particles per second
	Zone      ZoneConfig `yaml:"zone"`
	Direction Vec3       `yaml:"direction"`
	Spread    float64    `yaml:"spread"` // Cone half-angle in degrees
	Speed     [2]float64 `yaml:"speed"`  // [min, max]
	Inherit   float64    `yaml:"inherit,omitempty"`
}

// AffectorConfig defines an affector attached to a node. Only the fields
// used by the type are read.
type AffectorConfig struct {
	Name    string `yaml:"name"`
	Node    string `yaml:"node"`
	Type    string `yaml:"type"`              // force, damping, turbulence or kill_plane
	Species string `yaml:"species,omitempty"` // empty = all species
	Global  bool   `yaml:"global,omitempty"`

	Vector    Vec3    `yaml:"vector,omitempty"`    // force: acceleration
	Rate      float64 `yaml:"rate,omitempty"`      // damping: decay per second
	Strength  float64 `yaml:"strength,omitempty"`  // turbulence
	Frequency float64 `yaml:"frequency,omitempty"` // turbulence
	Speed     float64 `yaml:"speed,omitempty"`     // turbulence: field scroll speed
	Seed      int64   `yaml:"seed,omitempty"`      // turbulence
	Point     Vec3    `yaml:"point,omitempty"`     // kill_plane
	Normal    Vec3    `yaml:"normal,omitempty"`    // kill_plane
}

// Affector types.
const (
	AffectorForce      = "force"
	AffectorDamping    = "damping"
	AffectorTurbulence = "turbulence"
	AffectorKillPlane  = "kill_plane"
)

// Zone types.
const (
	ZonePoint = "point"
	ZoneBox   = "box"
)

// SystemConfig places a particle group of one species on a node. The group
// is fed by emitters and affected by affectors in the node's subtree. A node
// holds at most one system.
type SystemConfig struct {
	Name    string `yaml:"name"`
	Node    string `yaml:"node"`
	Species string `yaml:"species"`
	Global  bool   `yaml:"global,omitempty"` // particles live in the subtree root space
}

// ViewerConfig holds interactive viewer parameters.
type ViewerConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	TargetFPS    int     `yaml:"target_fps"`
	ParticleSize float64 `yaml:"particle_size"`  // World units per unit of the size attribute
	MaxFlowScale float64 `yaml:"max_flow_scale"` // Upper bound of the flow slider
}

// ParsedAttribute is an attribute setting resolved to particle types.
type ParsedAttribute struct {
	Attr   particle.Attribute
	State  particle.ParamState
	Values []float64
	Curve  *particle.Curve
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SpeciesIndex map[string]int      // name -> index into Species
	NodeIndex    map[string]int      // name -> index into Nodes
	Attributes   [][]ParsedAttribute // per species, in attribute order
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. List sections in the
// file replace the default lists.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse builds a configuration from YAML data overlaid on the embedded defaults.
func Parse(data []byte) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	// Unmarshal into same struct - only overwrites fields present in data
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// computeDerived fills defaults, builds name indices and resolves attribute
// names, states and curves.
func (c *Config) computeDerived() error {
	if !(c.Simulation.DT > 0) {
		c.Simulation.DT = 1.0 / 60.0
	}
	if !(c.Capacity.Quantile > 0 && c.Capacity.Quantile <= 1) {
		c.Capacity.Quantile = particle.DefaultCapacityQuantile
	}
	if c.Telemetry.PerfCollectorWindow < 1 {
		c.Telemetry.PerfCollectorWindow = 120
	}

	c.Derived.SpeciesIndex = make(map[string]int, len(c.Species))
	c.Derived.Attributes = make([][]ParsedAttribute, len(c.Species))
	for i := range c.Species {
		sp := &c.Species[i]
		if _, dup := c.Derived.SpeciesIndex[sp.Name]; dup {
			return fmt.Errorf("species %q: %w", sp.Name, ErrDuplicateName)
		}
		c.Derived.SpeciesIndex[sp.Name] = i

		attrs, err := parseAttributes(sp.Attributes)
		if err != nil {
			return fmt.Errorf("species %q: %w", sp.Name, err)
		}
		c.Derived.Attributes[i] = attrs
	}

	c.Derived.NodeIndex = make(map[string]int, len(c.Nodes))
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if _, dup := c.Derived.NodeIndex[n.Name]; dup {
			return fmt.Errorf("node %q: %w", n.Name, ErrDuplicateName)
		}
		if n.Parent != "" {
			if _, ok := c.Derived.NodeIndex[n.Parent]; !ok {
				return fmt.Errorf("node %q parent %q: %w", n.Name, n.Parent, ErrUnknownNode)
			}
		}
		for k := range n.Scale {
			if n.Scale[k] == 0 {
				n.Scale[k] = 1
			}
		}
		c.Derived.NodeIndex[n.Name] = i
	}

	for i := range c.Emitters {
		e := &c.Emitters[i]
		if err := c.checkRefs(e.Node, e.Species, false); err != nil {
			return fmt.Errorf("emitter %q: %w", e.Name, err)
		}
		switch e.Zone.Type {
		case "":
			e.Zone.Type = ZonePoint
		case ZonePoint, ZoneBox:
		default:
			return fmt.Errorf("emitter %q zone %q: %w", e.Name, e.Zone.Type, ErrUnknownZone)
		}
		if e.Speed[1] < e.Speed[0] {
			e.Speed[0], e.Speed[1] = e.Speed[1], e.Speed[0]
		}
	}

	for i := range c.Affectors {
		a := &c.Affectors[i]
		if err := c.checkRefs(a.Node, a.Species, true); err != nil {
			return fmt.Errorf("affector %q: %w", a.Name, err)
		}
		switch a.Type {
		case AffectorForce, AffectorDamping, AffectorTurbulence, AffectorKillPlane:
		default:
			return fmt.Errorf("affector %q type %q: %w", a.Name, a.Type, ErrUnknownAffector)
		}
	}

	owned := make(map[string]bool, len(c.Systems))
	for i := range c.Systems {
		s := &c.Systems[i]
		if s.Name == "" {
			s.Name = s.Node + "/" + s.Species
		}
		if err := c.checkRefs(s.Node, s.Species, false); err != nil {
			return fmt.Errorf("system %q: %w", s.Name, err)
		}
		if owned[s.Node] {
			return fmt.Errorf("system %q on node %q: %w", s.Name, s.Node, ErrDuplicateName)
		}
		owned[s.Node] = true
	}
	return nil
}

func (c *Config) checkRefs(node, species string, speciesOptional bool) error {
	if _, ok := c.Derived.NodeIndex[node]; !ok {
		return fmt.Errorf("node %q: %w", node, ErrUnknownNode)
	}
	if species == "" && speciesOptional {
		return nil
	}
	if _, ok := c.Derived.SpeciesIndex[species]; !ok {
		return fmt.Errorf("species %q: %w", species, ErrUnknownSpecies)
	}
	return nil
}

func parseAttributes(in map[string]AttributeConfig) ([]ParsedAttribute, error) {
	var out []ParsedAttribute
	for a := particle.Attribute(0); a < particle.NumAttributes; a++ {
		ac, ok := in[a.String()]
		if !ok {
			continue
		}
		st := particle.Fixed
		if ac.State != "" {
			st, ok = particle.ParseParamState(ac.State)
			if !ok {
				return nil, fmt.Errorf("attribute %s state %q: %w", a, ac.State, ErrUnknownState)
			}
		}
		pa := ParsedAttribute{Attr: a, State: st, Values: ac.Values}
		if ac.Curve != "" {
			curve, err := particle.ParseCurve(ac.Curve)
			if err != nil {
				return nil, fmt.Errorf("attribute %s curve: %w", a, err)
			}
			pa.Curve = curve
		}
		out = append(out, pa)
	}
	for name := range in {
		if _, ok := particle.ParseAttribute(name); !ok {
			return nil, fmt.Errorf("attribute %q: %w", name, ErrUnknownAttribute)
		}
	}
	return out, nil
}

// BuildModel creates the particle model for the species at index i.
func (c *Config) BuildModel(i int) *particle.Model {
	sp := &c.Species[i]
	m := particle.NewModel(sp.Name)
	for _, pa := range c.Derived.Attributes[i] {
		m.SetParamState(pa.Attr, pa.State)
		if len(pa.Values) > 0 {
			m.SetValues(pa.Attr, pa.Values...)
		}
		if pa.Curve != nil {
			m.SetInterpolator(pa.Attr, pa.Curve)
		}
	}
	m.SetLifetime(sp.Lifetime[0], sp.Lifetime[1])
	m.SetImmortal(sp.Immortal)
	m.SetGravity(sp.Gravity.R3())
	m.SetCapacity(sp.Capacity)
	m.SetAllowMultipleGroups(sp.AllowMultipleGroups)
	return m
}

// NodeTransform returns the local transform of a configured node.
func (n *NodeConfig) NodeTransform() particle.Transform {
	t := particle.Translate(n.Position.R3())
	t.Scale = n.Scale.R3()
	if n.Angle != 0 {
		t.Orientation = particle.AxisAngle(n.Axis.R3(), n.Angle*math.Pi/180)
	}
	return t
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
