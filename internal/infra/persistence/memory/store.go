// Package memory provides an in-memory implementation of the result store
// used for tests and ephemeral runs, and as the transactional engine the
// durable backends snapshot from.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"patchpipe/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain
// persistence interface.
var _ domain.Store = (*Store)(nil)

type state struct {
	experiments map[string]domain.Experiment
	cells       map[string]domain.Cell
	pairs       map[string]domain.Pair
	intrinsics  map[string]domain.IntrinsicRecord
	fits        map[string]domain.AvgResponseFitRecord
}

func newState() state {
	return state{
		experiments: make(map[string]domain.Experiment),
		cells:       make(map[string]domain.Cell),
		pairs:       make(map[string]domain.Pair),
		intrinsics:  make(map[string]domain.IntrinsicRecord),
		fits:        make(map[string]domain.AvgResponseFitRecord),
	}
}

func (st state) clone() state {
	out := newState()
	for k, v := range st.experiments {
		out.experiments[k] = v
	}
	for k, v := range st.cells {
		out.cells[k] = v
	}
	for k, v := range st.pairs {
		out.pairs[k] = v
	}
	for k, v := range st.intrinsics {
		out.intrinsics[k] = v
	}
	for k, v := range st.fits {
		out.fits[k] = v
	}
	return out
}

// Snapshot captures a point-in-time clone of the store state for durable
// backends.
type Snapshot struct {
	Experiments map[string]domain.Experiment           `json:"experiments"`
	Cells       map[string]domain.Cell                 `json:"cells"`
	Pairs       map[string]domain.Pair                 `json:"pairs"`
	Intrinsics  map[string]domain.IntrinsicRecord      `json:"intrinsics"`
	Fits        map[string]domain.AvgResponseFitRecord `json:"avg_response_fits"`
}

// Store is the in-memory result store. Transactions run against a cloned
// state that replaces the live one only on success.
type Store struct {
	mu    sync.RWMutex
	state state
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// RunInTransaction applies fn to a cloned state and commits the clone when
// fn returns nil. Any error discards every write made inside the scope.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &session{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View runs fn against a read-only snapshot of the current state.
func (s *Store) View(ctx context.Context, fn func(domain.SessionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&session{state: s.state})
}

// ExportState clones the current state into a Snapshot.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.clone()
	return Snapshot{
		Experiments: st.experiments,
		Cells:       st.cells,
		Pairs:       st.pairs,
		Intrinsics:  st.intrinsics,
		Fits:        st.fits,
	}
}

// ImportState replaces the live state with the snapshot's contents. Nil maps
// are normalized to empty ones.
func (s *Store) ImportState(snap Snapshot) {
	st := newState()
	for k, v := range snap.Experiments {
		st.experiments[k] = v
	}
	for k, v := range snap.Cells {
		st.cells[k] = v
	}
	for k, v := range snap.Pairs {
		st.pairs[k] = v
	}
	for k, v := range snap.Intrinsics {
		st.intrinsics[k] = v
	}
	for k, v := range snap.Fits {
		st.fits[k] = v
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ListIntrinsicRecords returns all intrinsic rows sorted by cell ID.
func (s *Store) ListIntrinsicRecords() []domain.IntrinsicRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IntrinsicRecord, 0, len(s.state.intrinsics))
	for _, r := range s.state.intrinsics {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out
}

// ListAvgResponseFitRecords returns all fit rows sorted by pair ID then
// condition.
func (s *Store) ListAvgResponseFitRecords() []domain.AvgResponseFitRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AvgResponseFitRecord, 0, len(s.state.fits))
	for _, r := range s.state.fits {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PairID != out[j].PairID {
			return out[i].PairID < out[j].PairID
		}
		if out[i].ClampMode != out[j].ClampMode {
			return out[i].ClampMode < out[j].ClampMode
		}
		return out[i].Holding < out[j].Holding
	})
	return out
}

// session implements domain.Session over one state clone.
type session struct {
	state state
}

var _ domain.Session = (*session)(nil)

func (t *session) CreateExperiment(e domain.Experiment) (domain.Experiment, error) {
	if e.ExtID == "" {
		return domain.Experiment{}, fmt.Errorf("experiment ext id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := t.state.experiments[e.ID]; ok {
		return domain.Experiment{}, fmt.Errorf("experiment %s already exists", e.ID)
	}
	t.state.experiments[e.ID] = e
	return e, nil
}

func (t *session) CreateCell(c domain.Cell) (domain.Cell, error) {
	if _, ok := t.state.experiments[c.ExperimentID]; !ok {
		return domain.Cell{}, domain.ErrNotFound{Entity: domain.EntityExperiment, ID: c.ExperimentID}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	t.state.cells[c.ID] = c
	return c, nil
}

func (t *session) CreatePair(p domain.Pair) (domain.Pair, error) {
	if _, ok := t.state.experiments[p.ExperimentID]; !ok {
		return domain.Pair{}, domain.ErrNotFound{Entity: domain.EntityExperiment, ID: p.ExperimentID}
	}
	for _, cellID := range []string{p.PreCellID, p.PostCellID} {
		if _, ok := t.state.cells[cellID]; !ok {
			return domain.Pair{}, domain.ErrNotFound{Entity: domain.EntityCell, ID: cellID}
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	t.state.pairs[p.ID] = p
	return p, nil
}

func (t *session) AddIntrinsic(r domain.IntrinsicRecord) (domain.IntrinsicRecord, error) {
	if _, ok := t.state.cells[r.CellID]; !ok {
		return domain.IntrinsicRecord{}, domain.ErrNotFound{Entity: domain.EntityCell, ID: r.CellID}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := t.state.intrinsics[r.ID]; ok {
		return domain.IntrinsicRecord{}, fmt.Errorf("intrinsic record %s already exists", r.ID)
	}
	t.state.intrinsics[r.ID] = r
	return r, nil
}

func (t *session) AddAvgResponseFit(r domain.AvgResponseFitRecord) (domain.AvgResponseFitRecord, error) {
	if _, ok := t.state.pairs[r.PairID]; !ok {
		return domain.AvgResponseFitRecord{}, domain.ErrNotFound{Entity: domain.EntityPair, ID: r.PairID}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := t.state.fits[r.ID]; ok {
		return domain.AvgResponseFitRecord{}, fmt.Errorf("avg response fit record %s already exists", r.ID)
	}
	t.state.fits[r.ID] = r
	return r, nil
}

func (t *session) DeleteIntrinsic(id string) error {
	if _, ok := t.state.intrinsics[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityIntrinsic, ID: id}
	}
	delete(t.state.intrinsics, id)
	return nil
}

func (t *session) DeleteAvgResponseFit(id string) error {
	if _, ok := t.state.fits[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityAvgResponseFit, ID: id}
	}
	delete(t.state.fits, id)
	return nil
}

func (t *session) ExperimentFromExtID(extID string) (domain.Experiment, error) {
	for _, e := range t.state.experiments {
		if e.ExtID == extID {
			return e, nil
		}
	}
	return domain.Experiment{}, domain.ErrNotFound{Entity: domain.EntityExperiment, ID: extID}
}

func (t *session) CellList(experimentID string) []domain.Cell {
	var out []domain.Cell
	for _, c := range t.state.cells {
		if c.ExperimentID == experimentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (t *session) PairList(experimentID string) []domain.Pair {
	var out []domain.Pair
	for _, p := range t.state.pairs {
		if p.ExperimentID == experimentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// jobExperimentIDs resolves job external IDs to internal experiment IDs.
func (t *session) jobExperimentIDs(jobIDs []string) map[string]struct{} {
	wanted := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, e := range t.state.experiments {
		if _, ok := wanted[e.ExtID]; ok {
			out[e.ID] = struct{}{}
		}
	}
	return out
}

func (t *session) IntrinsicRecordsForJobs(jobIDs []string) []domain.IntrinsicRecord {
	expIDs := t.jobExperimentIDs(jobIDs)
	var out []domain.IntrinsicRecord
	for _, r := range t.state.intrinsics {
		cell, ok := t.state.cells[r.CellID]
		if !ok {
			continue
		}
		if _, ok := expIDs[cell.ExperimentID]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out
}

func (t *session) AvgResponseFitsForJobs(jobIDs []string) []domain.AvgResponseFitRecord {
	expIDs := t.jobExperimentIDs(jobIDs)
	var out []domain.AvgResponseFitRecord
	for _, r := range t.state.fits {
		pair, ok := t.state.pairs[r.PairID]
		if !ok {
			continue
		}
		if _, ok := expIDs[pair.ExperimentID]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PairID != out[j].PairID {
			return out[i].PairID < out[j].PairID
		}
		if out[i].ClampMode != out[j].ClampMode {
			return out[i].ClampMode < out[j].ClampMode
		}
		return out[i].Holding < out[j].Holding
	})
	return out
}
