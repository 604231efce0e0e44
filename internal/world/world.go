// Package world mirrors the objects and players the backend reports in
// PHYSICS_UPDATE frames.
package world

import (
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/clock"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// TypePlayer marks an object whose "type" property is "player".
const TypePlayer = "player"

// Object is a copy of one mirrored object.
type Object struct {
	ID         string
	Type       string // "type" property, "object" when absent
	Position   protocol.Vec3
	Rotation   protocol.Quaternion
	Velocity   protocol.Vec3
	Properties map[string]any
	UpdatedAt  time.Time
}

// Name is the display name of a player, falling back to the id.
func (o Object) Name() string {
	for _, key := range []string{"name", "username"} {
		if s, ok := o.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return o.ID
}

type Change string

const (
	Added   Change = "added"
	Updated Change = "updated"
)

// Listener observes a change. It is called after the world lock is
// released, on the goroutine that applied the update.
type Listener func(change Change, obj Object)

// World is safe for concurrent use.
type World struct {
	clock clock.Clock

	mu        sync.RWMutex
	objects   map[string]*Object
	listeners []Listener
}

func New(clk clock.Clock) *World {
	if clk == nil {
		clk = clock.Real()
	}
	return &World{clock: clk, objects: make(map[string]*Object)}
}

// OnChange registers l for every later add and update.
func (w *World) OnChange(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// ApplyPhysics merges a PHYSICS_UPDATE: unknown ids are added, known ones
// take the fields present in their state. Properties merge key by key.
func (w *World) ApplyPhysics(objects map[string]protocol.ObjectState) {
	type event struct {
		change Change
		obj    Object
	}
	now := w.clock.Now()
	events := make([]event, 0, len(objects))

	w.mu.Lock()
	for _, id := range slices.Sorted(maps.Keys(objects)) {
		if id == "" {
			continue
		}
		st := objects[id]
		obj, ok := w.objects[id]
		change := Updated
		if !ok {
			obj = &Object{ID: id, Type: "object", Rotation: protocol.IdentityRotation, Properties: map[string]any{}}
			w.objects[id] = obj
			change = Added
		}
		merge(obj, st)
		obj.UpdatedAt = now
		events = append(events, event{change, obj.clone()})
	}
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	for _, ev := range events {
		if ev.change == Added {
			slog.Debug("world: object added", "id", ev.obj.ID, "type", ev.obj.Type)
		}
		for _, l := range listeners {
			l(ev.change, ev.obj)
		}
	}
}

func merge(obj *Object, st protocol.ObjectState) {
	if st.Position != nil {
		obj.Position = *st.Position
	}
	if st.Rotation != nil {
		obj.Rotation = *st.Rotation
	}
	if st.Velocity != nil {
		obj.Velocity = *st.Velocity
	}
	maps.Copy(obj.Properties, st.Properties)
	if t, ok := obj.Properties["type"].(string); ok && t != "" {
		obj.Type = strings.ToLower(t)
	}
}

func (o *Object) clone() Object {
	c := *o
	c.Properties = maps.Clone(o.Properties)
	return c
}

func (w *World) Get(id string) (Object, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	obj, ok := w.objects[id]
	if !ok {
		return Object{}, false
	}
	return obj.clone(), true
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.objects)
}

// Objects returns every object sorted by id.
func (w *World) Objects() []Object {
	return w.filter(func(*Object) bool { return true })
}

// ByType returns the objects of one type, sorted by id.
func (w *World) ByType(t string) []Object {
	t = strings.ToLower(t)
	return w.filter(func(o *Object) bool { return o.Type == t })
}

func (w *World) Players() []Object { return w.ByType(TypePlayer) }

// Within returns the objects at most radius away from pos, sorted by id.
func (w *World) Within(pos protocol.Vec3, radius float64) []Object {
	return w.filter(func(o *Object) bool { return distance(pos, o.Position) <= radius })
}

func (w *World) filter(keep func(*Object) bool) []Object {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Object
	for _, obj := range w.objects {
		if keep(obj) {
			out = append(out, obj.clone())
		}
	}
	slices.SortFunc(out, func(a, b Object) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func distance(a, b protocol.Vec3) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
