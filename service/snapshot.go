package service

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/kernel"
)

// Snapshotter is implemented by services whose scalar state can be saved
// and restored. Events and references are not part of the state.
type Snapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreState(data []byte) error
}

var stateEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("service: failed to create CBOR enc mode: %v", err))
	}
	stateEncMode = em
}

// EncodeState serializes v in canonical CBOR.
func EncodeState(v any) ([]byte, error) {
	return stateEncMode.Marshal(v)
}

// DecodeState deserializes CBOR produced by EncodeState.
func DecodeState(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

type snapshotEntry struct {
	Service string `cbor:"2,keyasint"`
	Shared  string `cbor:"4,keyasint,omitempty"`
	State   []byte `cbor:"3,keyasint"`
	Handle  uint32 `cbor:"1,keyasint"`
}

type registrySnapshot struct {
	Registry string          `cbor:"1,keyasint"`
	Sessions []snapshotEntry `cbor:"2,keyasint"`
}

// Snapshot captures the state of every snapshot-capable instance: sessions
// by handle and shared instances with handle 0.
func (r *Registry) Snapshot() ([]byte, error) {
	snap := registrySnapshot{Registry: r.id.String()}

	var walkErr error
	r.handles.Each(func(h kernel.Handle, obj kernel.Object) bool {
		svc, ok := obj.(Service)
		if !ok {
			return true
		}
		entry, ok, err := snapshotOne(svc)
		if err != nil {
			walkErr = err
			return false
		}
		if ok {
			entry.Handle = uint32(h)
			snap.Sessions = append(snap.Sessions, entry)
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	r.mu.RLock()
	names := make([]string, 0, len(r.shared))
	for name := range r.shared {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	for _, name := range names {
		svc, err := r.Shared(name)
		if err != nil {
			return nil, err
		}
		entry, ok, err := snapshotOne(svc)
		if err != nil {
			return nil, err
		}
		if ok {
			entry.Shared = name
			snap.Sessions = append(snap.Sessions, entry)
		}
	}

	data, err := EncodeState(snap)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "registry snapshot")
	}
	return data, nil
}

func snapshotOne(svc Service) (snapshotEntry, bool, error) {
	s, ok := svc.(Snapshotter)
	if !ok {
		return snapshotEntry{}, false, nil
	}
	svc.Lock()
	state, err := s.SnapshotState()
	svc.Unlock()
	name := svc.Commands().Name()
	if err != nil {
		return snapshotEntry{}, false, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, name+" snapshot")
	}
	return snapshotEntry{Service: name, State: state}, true, nil
}

// Restore applies a snapshot to the instances currently in the registry.
// Every entry must name a live instance of the same service type. Targets
// are resolved before any state changes, and a failing entry rolls back the
// entries already applied, so a failed Restore leaves the registry as it was.
func (r *Registry) Restore(data []byte) error {
	var snap registrySnapshot
	if err := DecodeState(data, &snap); err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "registry snapshot")
	}

	type target struct {
		svc    Service
		s      Snapshotter
		state  []byte
		backup []byte
		name   string
	}
	targets := make([]target, 0, len(snap.Sessions))
	for _, e := range snap.Sessions {
		svc, err := r.restoreTarget(e)
		if err != nil {
			return err
		}
		s, ok := svc.(Snapshotter)
		if !ok {
			return errors.TypeMismatch(errors.PhaseDecode, "snapshot-capable service", e.Service)
		}
		svc.Lock()
		backup, err := s.SnapshotState()
		svc.Unlock()
		if err != nil {
			return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, e.Service+" snapshot")
		}
		targets = append(targets, target{svc: svc, s: s, state: e.State, backup: backup, name: e.Service})
	}

	for i, t := range targets {
		t.svc.Lock()
		err := t.s.RestoreState(t.state)
		t.svc.Unlock()
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			prev := targets[j]
			prev.svc.Lock()
			_ = prev.s.RestoreState(prev.backup)
			prev.svc.Unlock()
		}
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, t.name+" restore")
	}
	return nil
}

func (r *Registry) restoreTarget(e snapshotEntry) (Service, error) {
	if e.Handle == 0 {
		return r.Shared(e.Shared)
	}
	svc, err := r.Service(kernel.Handle(e.Handle))
	if err != nil {
		return nil, err
	}
	if got := svc.Commands().Name(); got != e.Service {
		return nil, errors.TypeMismatch(errors.PhaseDecode, e.Service, got)
	}
	return svc, nil
}
