package verdict

import (
	"sync"
	"time"

	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/model"
)

// Detector maintains rolling outcome windows per scenario and quarantines
// the ones whose outcomes flip too often. Quarantined scenarios keep
// executing and reporting; they are only excluded from the critical
// pass-rate denominator.
type Detector struct {
	mu         sync.Mutex
	threshold  float64
	window     int
	liftStreak int
	records    map[string]*model.FlakyRecord
}

// NewDetector creates a detector from the flaky config section.
func NewDetector(cfg config.FlakyConfig) *Detector {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.4
	}
	window := cfg.QuarantineWindow
	if window < 2 {
		window = 10
	}
	lift := cfg.LiftStreak
	if lift <= 0 {
		lift = 3
	}
	return &Detector{
		threshold:  threshold,
		window:     window,
		liftStreak: lift,
		records:    make(map[string]*model.FlakyRecord),
	}
}

// Load seeds the detector with persisted records, replacing any in-memory
// state for the same scenarios.
func (d *Detector) Load(records []model.FlakyRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range records {
		rec := records[i]
		d.records[rec.ScenarioID] = &rec
	}
}

// Observe appends one outcome to the scenario's window, rescores it, and
// applies quarantine or lift. It returns a copy of the updated record.
func (d *Detector) Observe(scenarioID string, outcome model.Outcome) model.FlakyRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[scenarioID]
	if !ok {
		rec = &model.FlakyRecord{ScenarioID: scenarioID}
		d.records[scenarioID] = rec
	}

	rec.Window = append(rec.Window, outcome)
	if len(rec.Window) > d.window {
		rec.Window = rec.Window[len(rec.Window)-d.window:]
	}
	rec.Score = score(rec.Window)
	rec.UpdatedAt = time.Now().UTC()

	if rec.Score > d.threshold {
		rec.Quarantined = true
		rec.CalmStreak = 0
		return *rec
	}

	rec.CalmStreak++
	if rec.Quarantined && rec.CalmStreak >= d.liftStreak {
		rec.Quarantined = false
	}
	return *rec
}

// Record returns a copy of the scenario's flaky record, if one exists.
func (d *Detector) Record(scenarioID string) (model.FlakyRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[scenarioID]
	if !ok {
		return model.FlakyRecord{}, false
	}
	return *rec, true
}

// Records snapshots every record for persistence, in unspecified order.
func (d *Detector) Records() []model.FlakyRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.FlakyRecord, 0, len(d.records))
	for _, rec := range d.records {
		out = append(out, *rec)
	}
	return out
}

// score is the position-weighted inconsistency rate: each adjacent outcome
// flip contributes its position's weight, recent positions weighing more,
// normalized by the total weight. A constant window scores zero.
func score(window []model.Outcome) float64 {
	if len(window) < 2 {
		return 0
	}
	var flips, total float64
	for i := 1; i < len(window); i++ {
		weight := float64(i)
		total += weight
		if window[i] != window[i-1] {
			flips += weight
		}
	}
	return flips / total
}
