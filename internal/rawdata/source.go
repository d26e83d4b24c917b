// Package rawdata resolves experiment raw-data payloads (NWB-derived sweep
// archives) from blob storage and partitions them into per-cell,
// per-protocol recording sets for the extractors.
package rawdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"patchpipe/internal/blob"
	"patchpipe/internal/qc"
	"patchpipe/pkg/domain"
)

// noDataMessage is the job-level abort diagnostic for experiments without a
// usable raw payload.
const noDataMessage = "No NWB data for this experiment"

// ExperimentData is the decoded raw payload for one experiment: every sweep
// recording across devices, plus the trial-averaged pair responses produced
// by upstream pulse-response averaging.
type ExperimentData struct {
	ExtID        string                   `json:"ext_id"`
	Recordings   []domain.RawRecording    `json:"recordings"`
	PairAverages []domain.ResponseAverage `json:"pair_averages,omitempty"`
}

// RecordingDict groups one device's QC-passing recordings by protocol. The
// selector consumes each protocol slice independently.
type RecordingDict map[domain.ProtocolKind][]domain.RawRecording

// Source loads experiment payloads from blob storage, applying QC filtering
// on the way out.
type Source struct {
	store  blob.Store
	engine *domain.QCEngine
}

// NewSource constructs a raw-data source. A nil engine disables QC
// filtering (tests only); production callers pass qc.DefaultEngine().
func NewSource(store blob.Store, engine *domain.QCEngine) *Source {
	return &Source{store: store, engine: engine}
}

// Key returns the blob key for an experiment's raw payload.
func Key(extID string) string {
	return "experiments/" + extID + ".json"
}

// Load fetches and decodes the payload for one experiment. A missing, empty,
// or corrupt payload is the missing-prerequisite condition that aborts the
// whole job.
func (s *Source) Load(ctx context.Context, extID string) (*ExperimentData, error) {
	_, rc, err := s.store.Get(ctx, Key(extID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, domain.MissingPrerequisiteError{ExtID: extID, Reason: noDataMessage}
		}
		return nil, fmt.Errorf("fetch raw data for %s: %w", extID, err)
	}
	defer func() { _ = rc.Close() }()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read raw data for %s: %w", extID, err)
	}
	var data ExperimentData
	if len(payload) == 0 || json.Unmarshal(payload, &data) != nil || len(data.Recordings) == 0 {
		// Corrupt archives surface the same way as absent ones.
		return nil, domain.MissingPrerequisiteError{ExtID: extID, Reason: noDataMessage}
	}
	return &data, nil
}

// Save encodes and stores an experiment payload. Used by ingestion and test
// fixtures; analysis never writes raw data.
func (s *Source) Save(ctx context.Context, data *ExperimentData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode raw data for %s: %w", data.ExtID, err)
	}
	_, err = s.store.Put(ctx, Key(data.ExtID), bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("store raw data for %s: %w", data.ExtID, err)
	}
	return nil
}

// IntrinsicRecordings returns the device's recordings partitioned by
// protocol, with QC-blocked sweeps removed.
func (s *Source) IntrinsicRecordings(ctx context.Context, data *ExperimentData, deviceID int) (RecordingDict, error) {
	var raw []domain.RawRecording
	for _, rec := range data.Recordings {
		if rec.DeviceID == deviceID {
			raw = append(raw, rec)
		}
	}
	passed, err := qc.Filter(ctx, s.engine, raw)
	if err != nil {
		return nil, err
	}
	dict := RecordingDict{
		domain.ProtocolLongSquare: nil,
		domain.ProtocolChirp:      nil,
	}
	for _, rec := range passed {
		dict[rec.Protocol] = append(dict[rec.Protocol], rec)
	}
	return dict, nil
}

// AveragesForPair returns the trial-averaged responses recorded for the
// given pair key, one per (clamp mode, holding) condition.
func (d *ExperimentData) AveragesForPair(key string) []domain.ResponseAverage {
	var out []domain.ResponseAverage
	for _, avg := range d.PairAverages {
		if avg.PairKey == key {
			out = append(out, avg)
		}
	}
	return out
}
