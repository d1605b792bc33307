package config

import (
	"fmt"
	"time"
)

// ActorSpec is the resolved, validated form of one entry in the root
// "actors" list: the Master's CreateActors reads a slice of these rather
// than walking raw Nodes.
type ActorSpec struct {
	Name     string
	Class    string
	Remote   string
	Optional bool
	ReadFrom []string
	WriteTo  []string

	// Settings is the actor entry's own sub-tree, made available to the
	// actor's constructor/onInitializeRaceActor for class-specific keys.
	Settings *Node
}

// IsRemote reports whether this actor entry names a remote peer rather
// than a local class to construct.
func (a ActorSpec) IsRemote() bool {
	return a.Remote != ""
}

// Universe is the parsed, top-level view of a configuration file's
// recognized root keys.
type Universe struct {
	Name           string
	TimeScale      float64
	StartTime      time.Time
	ShowExceptions bool
	Actors         []ActorSpec
}

// ParseUniverse validates and extracts the root-level keys the Driver
// cares about: "name", "actors", "time-scale", "start-time",
// "show-exceptions". It enforces Invariant (a): actor names are unique per
// universe.
func ParseUniverse(root *Node) (*Universe, error) {
	startTime := time.Now()
	if raw, err := root.String("start-time"); err == nil {
		parsed, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return nil, fmt.Errorf("%w: start-time %q: %v", ErrParse, raw, perr)
		}
		startTime = parsed
	}

	u := &Universe{
		Name:           root.StringOr("name", "universe"),
		TimeScale:      root.FloatOr("time-scale", 1.0),
		StartTime:      startTime,
		ShowExceptions: root.BoolOr("show-exceptions", false),
	}

	actorNodes, err := root.SubTreeList("actors")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	seen := make(map[string]struct{}, len(actorNodes))

	for _, node := range actorNodes {
		spec, err := parseActorSpec(node)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateActorName, spec.Name)
		}
		seen[spec.Name] = struct{}{}

		u.Actors = append(u.Actors, spec)
	}

	return u, nil
}

func parseActorSpec(node *Node) (ActorSpec, error) {
	name, err := node.String("name")
	if err != nil {
		return ActorSpec{}, fmt.Errorf("%w", ErrMissingName)
	}

	remote := node.StringOr("remote", "")

	class, err := node.String("class")
	if err != nil && remote == "" {
		return ActorSpec{}, fmt.Errorf("%w: actor %q", ErrMissingClass, name)
	}

	return ActorSpec{
		Name:     name,
		Class:    class,
		Remote:   remote,
		Optional: node.BoolOr("optional", false),
		ReadFrom: node.StringListOr("read-from", nil),
		WriteTo:  node.StringListOr("write-to", nil),
		Settings: node,
	}, nil
}
