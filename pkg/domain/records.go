package domain

// FeatureMap is a flat mapping from named feature to value, produced by the
// extractors. A nil or empty map means extraction yielded no features for the
// protocol (recoverable; the record is still written with null fields).
type FeatureMap map[string]float64

// Long-square feature keys. Values carry the pipeline's native SI-like units
// (amps, volts, ohms); the extractor undoes the analyzer's pA/mV/MOhm
// conventions before populating the map.
const (
	FeatAvgFiringRate        = "avg_firing_rate"
	FeatRheobase             = "rheobase"
	FeatFISlope              = "fi_slope"
	FeatInputResistance      = "input_resistance"
	FeatInputResistanceSS    = "input_resistance_ss"
	FeatSag                  = "sag"
	FeatAdaptationIndex      = "adaptation_index"
	FeatUpstrokeDownstroke   = "upstroke_downstroke_ratio"
	FeatUpstroke             = "upstroke"
	FeatDownstroke           = "downstroke"
	FeatWidth                = "width"
	FeatThresholdV           = "threshold_v"
	FeatPeakDeltaV           = "peak_deltav"
	FeatFastTroughDeltaV     = "fast_trough_deltav"
	FeatISIAdaptRatio        = "isi_adapt_ratio"
	FeatUpstrokeAdaptRatio   = "upstroke_adapt_ratio"
	FeatDownstrokeAdaptRatio = "downstroke_adapt_ratio"
	FeatWidthAdaptRatio      = "width_adapt_ratio"
	FeatThresholdVAdaptRatio = "threshold_v_adapt_ratio"
)

// Chirp feature keys; values pass through from the analyzer unscaled.
const (
	FeatChirpPeakFreq       = "chirp_peak_freq"
	FeatChirp3DBFreq        = "chirp_3db_freq"
	FeatChirpPeakRatio      = "chirp_peak_ratio"
	FeatChirpPeakImpedance  = "chirp_peak_impedance"
	FeatChirpSyncFreq       = "chirp_sync_freq"
	FeatChirpInductivePhase = "chirp_inductive_phase"
)

// LongSquareFeatureKeys lists every key a successful long-square extraction
// populates, in schema order.
var LongSquareFeatureKeys = []string{
	FeatAvgFiringRate,
	FeatRheobase,
	FeatFISlope,
	FeatInputResistance,
	FeatInputResistanceSS,
	FeatSag,
	FeatAdaptationIndex,
	FeatUpstrokeDownstroke,
	FeatUpstroke,
	FeatDownstroke,
	FeatWidth,
	FeatThresholdV,
	FeatPeakDeltaV,
	FeatFastTroughDeltaV,
	FeatISIAdaptRatio,
	FeatUpstrokeAdaptRatio,
	FeatDownstrokeAdaptRatio,
	FeatWidthAdaptRatio,
	FeatThresholdVAdaptRatio,
}

// ChirpFeatureKeys lists every key a successful chirp extraction populates.
var ChirpFeatureKeys = []string{
	FeatChirpPeakFreq,
	FeatChirp3DBFreq,
	FeatChirpPeakRatio,
	FeatChirpPeakImpedance,
	FeatChirpSyncFreq,
	FeatChirpInductivePhase,
}

// IntrinsicRecord is the per-cell summary row merging long-square and chirp
// features. Fields are pointers so a cell whose extraction produced no
// features still gets a row with nulls. Records are written once and
// superseded, never updated, on reprocessing.
type IntrinsicRecord struct {
	ID     string `json:"id"`
	CellID string `json:"cell_id"`

	AvgFiringRate           *float64 `json:"avg_firing_rate,omitempty"`
	Rheobase                *float64 `json:"rheobase,omitempty"`
	FISlope                 *float64 `json:"fi_slope,omitempty"`
	InputResistance         *float64 `json:"input_resistance,omitempty"`
	InputResistanceSS       *float64 `json:"input_resistance_ss,omitempty"`
	Sag                     *float64 `json:"sag,omitempty"`
	AdaptationIndex         *float64 `json:"adaptation_index,omitempty"`
	UpstrokeDownstrokeRatio *float64 `json:"upstroke_downstroke_ratio,omitempty"`
	Upstroke                *float64 `json:"upstroke,omitempty"`
	Downstroke              *float64 `json:"downstroke,omitempty"`
	Width                   *float64 `json:"width,omitempty"`
	ThresholdV              *float64 `json:"threshold_v,omitempty"`
	PeakDeltaV              *float64 `json:"peak_deltav,omitempty"`
	FastTroughDeltaV        *float64 `json:"fast_trough_deltav,omitempty"`
	ISIAdaptRatio           *float64 `json:"isi_adapt_ratio,omitempty"`
	UpstrokeAdaptRatio      *float64 `json:"upstroke_adapt_ratio,omitempty"`
	DownstrokeAdaptRatio    *float64 `json:"downstroke_adapt_ratio,omitempty"`
	WidthAdaptRatio         *float64 `json:"width_adapt_ratio,omitempty"`
	ThresholdVAdaptRatio    *float64 `json:"threshold_v_adapt_ratio,omitempty"`

	ChirpPeakFreq       *float64 `json:"chirp_peak_freq,omitempty"`
	Chirp3DBFreq        *float64 `json:"chirp_3db_freq,omitempty"`
	ChirpPeakRatio      *float64 `json:"chirp_peak_ratio,omitempty"`
	ChirpPeakImpedance  *float64 `json:"chirp_peak_impedance,omitempty"`
	ChirpSyncFreq       *float64 `json:"chirp_sync_freq,omitempty"`
	ChirpInductivePhase *float64 `json:"chirp_inductive_phase,omitempty"`
}

// ApplyFeatures assigns each known feature key present in the map to its
// named field. Assignment is explicit per field; unknown keys are ignored so
// analyzer extensions cannot corrupt the schema.
func (r *IntrinsicRecord) ApplyFeatures(features FeatureMap) {
	set := func(dst **float64, key string) {
		if v, ok := features[key]; ok {
			val := v
			*dst = &val
		}
	}
	set(&r.AvgFiringRate, FeatAvgFiringRate)
	set(&r.Rheobase, FeatRheobase)
	set(&r.FISlope, FeatFISlope)
	set(&r.InputResistance, FeatInputResistance)
	set(&r.InputResistanceSS, FeatInputResistanceSS)
	set(&r.Sag, FeatSag)
	set(&r.AdaptationIndex, FeatAdaptationIndex)
	set(&r.UpstrokeDownstrokeRatio, FeatUpstrokeDownstroke)
	set(&r.Upstroke, FeatUpstroke)
	set(&r.Downstroke, FeatDownstroke)
	set(&r.Width, FeatWidth)
	set(&r.ThresholdV, FeatThresholdV)
	set(&r.PeakDeltaV, FeatPeakDeltaV)
	set(&r.FastTroughDeltaV, FeatFastTroughDeltaV)
	set(&r.ISIAdaptRatio, FeatISIAdaptRatio)
	set(&r.UpstrokeAdaptRatio, FeatUpstrokeAdaptRatio)
	set(&r.DownstrokeAdaptRatio, FeatDownstrokeAdaptRatio)
	set(&r.WidthAdaptRatio, FeatWidthAdaptRatio)
	set(&r.ThresholdVAdaptRatio, FeatThresholdVAdaptRatio)
	set(&r.ChirpPeakFreq, FeatChirpPeakFreq)
	set(&r.Chirp3DBFreq, FeatChirp3DBFreq)
	set(&r.ChirpPeakRatio, FeatChirpPeakRatio)
	set(&r.ChirpPeakImpedance, FeatChirpPeakImpedance)
	set(&r.ChirpSyncFreq, FeatChirpSyncFreq)
	set(&r.ChirpInductivePhase, FeatChirpInductivePhase)
}

// AvgResponseFitRecord is the per-pair, per-condition summary of a curve fit
// to the trial-averaged post-synaptic response. Fit parameters are named
// fields populated by direct assignment.
type AvgResponseFitRecord struct {
	ID     string `json:"id"`
	PairID string `json:"pair_id"`

	ClampMode ClampMode `json:"clamp_mode"`
	Holding   float64   `json:"holding"`

	NRMSE          float64 `json:"nrmse"`
	InitialXOffset float64 `json:"initial_xoffset"`
	ManualQCPass   bool    `json:"manual_qc_pass"`

	FitXOffset  float64 `json:"fit_xoffset"`
	FitYOffset  float64 `json:"fit_yoffset"`
	FitAmp      float64 `json:"fit_amp"`
	FitRiseTime float64 `json:"fit_rise_time"`
	FitDecayTau float64 `json:"fit_decay_tau"`
	FitExpAmp   float64 `json:"fit_exp_amp"`
	FitExpTau   float64 `json:"fit_exp_tau"`
}
