// Package domain defines the core entities, value types, persistence
// interfaces, and QC rule primitives shared by the patchpipe pipeline core.
package domain

import "time"

// ClampMode is the canonical long-form clamp mode label used in persisted
// records and analysis output.
type ClampMode string

// Canonical clamp modes. Raw recordings carry the two-letter acquisition
// codes "ic" / "vc"; the sweep adapter expands them.
const (
	CurrentClamp ClampMode = "CurrentClamp"
	VoltageClamp ClampMode = "VoltageClamp"
)

// ClampModeFromCode expands an acquisition clamp code to its canonical label.
// Unknown codes map to VoltageClamp, matching acquisition-side defaults.
func ClampModeFromCode(code string) ClampMode {
	if code == "ic" {
		return CurrentClamp
	}
	return VoltageClamp
}

// ProtocolKind identifies a stimulus protocol family relevant to intrinsic
// feature extraction.
type ProtocolKind string

// Supported stimulus protocol kinds.
const (
	// ProtocolLongSquare is a step-current injection eliciting spiking and
	// subthreshold responses.
	ProtocolLongSquare ProtocolKind = "long_square"
	// ProtocolChirp is a frequency-swept current injection used for
	// impedance analysis.
	ProtocolChirp ProtocolKind = "chirp"
)

// Label returns the human-facing protocol name used in diagnostic strings.
func (p ProtocolKind) Label() string {
	switch p {
	case ProtocolLongSquare:
		return "long pulse"
	case ProtocolChirp:
		return "chirp"
	}
	return string(p)
}

// EntityType identifies the type of record stored by the pipeline.
type EntityType string

// Supported entity type identifiers used in persistence buckets and errors.
const (
	EntityExperiment     EntityType = "experiment"
	EntityCell           EntityType = "cell"
	EntityPair           EntityType = "pair"
	EntityIntrinsic      EntityType = "intrinsic"
	EntityAvgResponseFit EntityType = "avg_response_fit"
)

// StimulusEpoch describes one segment of the command stimulus. The epoch
// described as "holding current" supplies the baseline amplitude the sweep
// adapter subtracts from the command trace.
type StimulusEpoch struct {
	Description string  `json:"description"`
	Amplitude   float64 `json:"amplitude"`
}

// HoldingCurrentDescription is the epoch description identifying the holding
// current segment of a stimulus.
const HoldingCurrentDescription = "holding current"

// TimeWindow is a [start, end) interval in seconds on the recording time base.
type TimeWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the window length in seconds.
func (w TimeWindow) Duration() float64 { return w.End - w.Start }

// RawRecording is one stimulus/response trace pair for one sweep of one cell,
// owned by the upstream acquisition/QC subsystem and read-only here.
// Primary samples are in volts, command samples in amps (acquisition native
// units); the sweep adapter performs all unit conversion.
type RawRecording struct {
	SweepKey    int             `json:"sweep_key"`
	DeviceID    int             `json:"device_id"`
	Protocol    ProtocolKind    `json:"protocol"`
	ClampCode   string          `json:"clamp_code"` // "ic" | "vc"
	SampleRate  float64         `json:"sample_rate"`
	Primary     []float64       `json:"primary"`
	Command     []float64       `json:"command"`
	Stimulus    []StimulusEpoch `json:"stimulus"`
	PulseWindow *TimeWindow     `json:"pulse_window,omitempty"`
	QCPass      bool            `json:"qc_pass"`
}

// HoldingAmplitude returns the amplitude of the holding-current stimulus
// epoch. The second return is false when no such epoch exists, in which case
// the recording cannot be normalized into a sweep.
func (r RawRecording) HoldingAmplitude() (float64, bool) {
	for _, ep := range r.Stimulus {
		if ep.Description == HoldingCurrentDescription {
			return ep.Amplitude, true
		}
	}
	return 0, false
}

// NormalizedSweep is the unit-scaled, time-aligned form of a RawRecording
// consumed by the analyzers: time in seconds with pulse onset at t=0,
// voltage in mV, current in pA with holding current subtracted. It exists
// only for the duration of one extraction call.
type NormalizedSweep struct {
	T           []float64
	V           []float64 // mV
	I           []float64 // pA, holding subtracted
	ClampMode   ClampMode
	SampleRate  float64
	SweepNumber int
}

// SweepSet is an ordered collection of normalized sweeps for one cell and one
// protocol. All members share the protocol kind; an empty set is the
// "no qualifying sweeps" condition and never reaches an analyzer.
type SweepSet struct {
	Protocol ProtocolKind
	Sweeps   []NormalizedSweep
}

// Len returns the number of sweeps in the set.
func (s SweepSet) Len() int { return len(s.Sweeps) }

// ResponseAverage is a trial-averaged post-synaptic response for one pair
// under one (clamp mode, holding potential) condition, produced upstream by
// pulse-response averaging and consumed by the fit orchestrator.
type ResponseAverage struct {
	PairKey    string    `json:"pair_key"`
	ClampMode  ClampMode `json:"clamp_mode"`
	Holding    float64   `json:"holding"` // mV
	SampleRate float64   `json:"sample_rate"`
	Data       []float64 `json:"data"`    // response units per clamp mode
	Latency    float64   `json:"latency"` // s, onset estimate from averaging
}

// Experiment is one multipatch recording session, identified externally by
// its timestamp-derived ext ID. Cells and pairs are owned by the surrounding
// pipeline's database; this core reads identifiers and iterates children.
type Experiment struct {
	ID        string    `json:"id"`
	ExtID     string    `json:"ext_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Cell is one patched neuron within an experiment, addressed through its
// electrode's device ID.
type Cell struct {
	ID           string `json:"id"`
	ExperimentID string `json:"experiment_id"`
	ExtID        string `json:"ext_id"`
	DeviceID     int    `json:"device_id"`
}

// Pair is a probed pre/post synaptic connection between two cells of one
// experiment. PreCellID and PostCellID reference store rows; the ext IDs
// carry the acquisition-time identity that raw payloads and QC notes are
// keyed by.
type Pair struct {
	ID           string `json:"id"`
	ExperimentID string `json:"experiment_id"`
	PreCellID    string `json:"pre_cell_id"`
	PostCellID   string `json:"post_cell_id"`
	PreExtID     string `json:"pre_ext_id"`
	PostExtID    string `json:"post_ext_id"`
	HasSynapse   bool   `json:"has_synapse"`
}

// Key returns the stable pair key used to address averaged responses and
// manual QC notes for this pair. It is built from ext IDs so it survives
// record regeneration.
func (p Pair) Key() string { return p.PreExtID + "~" + p.PostExtID }
