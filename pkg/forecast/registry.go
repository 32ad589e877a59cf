package forecast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tunogya/sensorcast/pkg/model"
)

// snapshot is an immutable fitted model; it is swapped as a whole
type snapshot struct {
	estimator *Ensemble
	trainedAt time.Time
	run       model.TrainingRun
}

// entry is the per-sensor slot. Entries live as long as the registry, so mu
// serialises every training pass for the sensor, across clears too. Readers
// only touch the atomic pointer.
type entry struct {
	sensor model.SensorKind
	model  atomic.Pointer[snapshot]

	mu       sync.Mutex
	attempts atomic.Int64 // completed training attempts
	lastErr  error        // outcome of the latest attempt, guarded by mu

	pub sync.Mutex // orders publish against reset
	gen int64      // bumped by reset, guarded by pub
}

// generation returns the current clear generation
func (e *entry) generation() int64 {
	e.pub.Lock()
	defer e.pub.Unlock()
	return e.gen
}

// publish stores s unless the entry was reset after gen was read
func (e *entry) publish(gen int64, s *snapshot) bool {
	e.pub.Lock()
	defer e.pub.Unlock()
	if e.gen != gen {
		return false
	}
	e.model.Store(s)
	return true
}

// reset drops the fitted model and invalidates training passes in flight.
// It reports whether a model was held.
func (e *entry) reset() bool {
	e.pub.Lock()
	defer e.pub.Unlock()
	e.gen++
	return e.model.Swap(nil) != nil
}

type registry struct {
	mu      sync.RWMutex
	entries map[model.SensorKind]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[model.SensorKind]*entry)}
}

// get returns the entry for sensor, creating an untrained one if needed
func (r *registry) get(sensor model.SensorKind) *entry {
	r.mu.RLock()
	e, ok := r.entries[sensor]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[sensor]; ok {
		return e
	}
	e = &entry{sensor: sensor}
	r.entries[sensor] = e
	return e
}

func (r *registry) lookup(sensor model.SensorKind) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sensor]
	return e, ok
}

// remove resets the model of sensor and reports whether one was held
func (r *registry) remove(sensor model.SensorKind) bool {
	e, ok := r.lookup(sensor)
	if !ok {
		return false
	}
	return e.reset()
}

// clear resets every entry and returns how many held a model
func (r *registry) clear() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.reset() {
			n++
		}
	}
	return n
}

// trained counts entries holding a model
func (r *registry) trained() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.model.Load() != nil {
			n++
		}
	}
	return n
}
