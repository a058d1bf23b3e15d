package am

import "github.com/wippyai/hle/service"

type selfControllerState struct {
	SuspendedTicks       uint64 `cbor:"1,keyasint"`
	IdleTimeDetectionExt uint32 `cbor:"2,keyasint"`
	ExitRequested        bool   `cbor:"3,keyasint"`
	ExitLocked           bool   `cbor:"4,keyasint"`
	AutoSleepDisabled    bool   `cbor:"5,keyasint"`
}

// SnapshotState implements service.Snapshotter. Events and the display
// reference are not saved.
func (s *SelfController) SnapshotState() ([]byte, error) {
	return service.EncodeState(selfControllerState{
		SuspendedTicks:       s.suspendedTicks,
		IdleTimeDetectionExt: s.idleTimeDetectionExt,
		ExitRequested:        s.exitRequested,
		ExitLocked:           s.exitLocked,
		AutoSleepDisabled:    s.autoSleepDisabled,
	})
}

// RestoreState implements service.Snapshotter. A changed tick value
// signals the tick changed event like any other change.
func (s *SelfController) RestoreState(data []byte) error {
	var st selfControllerState
	if err := service.DecodeState(data, &st); err != nil {
		return err
	}
	if st.SuspendedTicks != s.suspendedTicks {
		s.suspendedTicks = st.SuspendedTicks
		s.suspendedTickEvent.Get().Signal()
	}
	s.idleTimeDetectionExt = st.IdleTimeDetectionExt
	s.exitRequested = st.ExitRequested
	s.exitLocked = st.ExitLocked
	s.autoSleepDisabled = st.AutoSleepDisabled
	return nil
}
