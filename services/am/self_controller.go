package am

import (
	"math"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
)

// Lux reported by GetCurrentIlluminanceEx.
const ambientLux float32 = 10000

// SelfController is an application's view of its own applet state.
type SelfController struct {
	service.Base
	display              service.Ref[LayerProvider]
	launchableEvent      service.LazyEvent
	suspendedTickEvent   service.LazyEvent
	layers               []uint64
	suspendedTicks       uint64
	idleTimeDetectionExt uint32
	exitRequested        bool
	exitLocked           bool
	autoSleepDisabled    bool
}

func NewSelfController() *SelfController {
	return &SelfController{
		display:            service.Ref[LayerProvider]{Name: DisplayProvider},
		launchableEvent:    service.LazyEvent{Name: "am:library-applet-launchable", Signaled: true},
		suspendedTickEvent: service.LazyEvent{Name: "am:accumulated-suspended-tick-changed"},
	}
}

func (s *SelfController) Commands() service.Commands { return selfControllerTable.Bind(s) }

// ExitRequested reports whether the application asked to exit.
func (s *SelfController) ExitRequested() bool {
	s.Lock()
	defer s.Unlock()
	return s.exitRequested
}

// ExitLocked reports whether exiting through the home menu is blocked.
func (s *SelfController) ExitLocked() bool {
	s.Lock()
	defer s.Unlock()
	return s.exitLocked
}

// Layers returns the display layers created through this session.
func (s *SelfController) Layers() []uint64 {
	s.Lock()
	defer s.Unlock()
	return append([]uint64(nil), s.layers...)
}

// Drop implements kernel.Dropper. Layers created through this session are
// destroyed so the display can hand out their slots again.
func (s *SelfController) Drop() {
	s.Lock()
	defer s.Unlock()
	if !s.display.Resolved() {
		s.layers = nil
		return
	}
	provider, _ := s.display.Resolve(nil)
	for _, id := range s.layers {
		_ = provider.DestroyLayer(id)
	}
	s.layers = nil
}

// AddSuspendedTicks accounts time the application spent suspended and
// signals the tick changed event. The accumulator saturates.
func (s *SelfController) AddSuspendedTicks(delta uint64) {
	if delta == 0 {
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.suspendedTicks > math.MaxUint64-delta {
		s.suspendedTicks = math.MaxUint64
	} else {
		s.suspendedTicks += delta
	}
	s.suspendedTickEvent.Get().Signal()
}

var (
	u8Field  = []wit.Type{wit.U8{}}
	u32Field = []wit.Type{wit.U32{}}
)

var selfControllerTable = service.MustTable("ISelfController",
	service.Entry[*SelfController]{Code: 0x0, Name: "Exit", Handler: exit},
	service.Entry[*SelfController]{Code: 0x1, Name: "LockExit", Handler: lockExit},
	service.Entry[*SelfController]{Code: 0x2, Name: "UnlockExit", Handler: unlockExit},
	service.Entry[*SelfController]{Code: 0x9, Name: "GetLibraryAppletLaunchableEvent", Handler: getLibraryAppletLaunchableEvent},
	service.Entry[*SelfController]{Code: 0xA, Name: "SetScreenShotPermission", Stub: true, In: u32Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0xB, Name: "SetOperationModeChangedNotification", Stub: true, In: u8Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0xC, Name: "SetPerformanceModeChangedNotification", Stub: true, In: u8Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0xD, Name: "SetFocusHandlingMode", Stub: true, In: []wit.Type{wit.U8{}, wit.U8{}, wit.U8{}}, Handler: stub},
	service.Entry[*SelfController]{Code: 0xE, Name: "SetRestartMessageEnabled", Stub: true, In: u8Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0x10, Name: "SetOutOfFocusSuspendingEnabled", Stub: true, In: u8Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0x13, Name: "SetAlbumImageOrientation", Stub: true, In: u32Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0x28, Name: "CreateManagedDisplayLayer", Out: []wit.Type{wit.U64{}}, Handler: createManagedDisplayLayer},
	service.Entry[*SelfController]{Code: 0x3E, Name: "SetIdleTimeDetectionExtension", In: u32Field, Handler: setIdleTimeDetectionExtension},
	service.Entry[*SelfController]{Code: 0x3F, Name: "GetIdleTimeDetectionExtension", Out: u32Field, Handler: getIdleTimeDetectionExtension},
	service.Entry[*SelfController]{Code: 0x41, Name: "ReportUserIsActive", Stub: true, Handler: stub},
	service.Entry[*SelfController]{Code: 0x43, Name: "IsIlluminanceAvailable", Out: []wit.Type{wit.Bool{}}, Handler: isIlluminanceAvailable},
	service.Entry[*SelfController]{Code: 0x44, Name: "SetAutoSleepDisabled", In: []wit.Type{wit.Bool{}}, Handler: setAutoSleepDisabled},
	service.Entry[*SelfController]{Code: 0x45, Name: "IsAutoSleepDisabled", Out: []wit.Type{wit.Bool{}}, Handler: isAutoSleepDisabled},
	service.Entry[*SelfController]{Code: 0x47, Name: "GetCurrentIlluminanceEx", Out: []wit.Type{wit.U32{}, wit.F32{}}, Handler: getCurrentIlluminanceEx},
	service.Entry[*SelfController]{Code: 0x5A, Name: "GetAccumulatedSuspendedTickValue", Out: []wit.Type{wit.U64{}}, Handler: getAccumulatedSuspendedTickValue},
	service.Entry[*SelfController]{Code: 0x5B, Name: "GetAccumulatedSuspendedTickChangedEvent", Handler: getAccumulatedSuspendedTickChangedEvent},
	service.Entry[*SelfController]{Code: 0x64, Name: "SetAlbumImageTakenNotificationEnabled", Stub: true, In: u8Field, Handler: stub},
	service.Entry[*SelfController]{Code: 0x82, Name: "SetRecordVolumeMuted", Stub: true, In: u8Field, Handler: stub},
)

// stub accepts any payload. Declared inputs only describe the command.
func stub(*SelfController, *service.Context, *ipc.Request, *ipc.Response) result.Code {
	return result.Success
}

func exit(s *SelfController, c *service.Context, _ *ipc.Request, _ *ipc.Response) result.Code {
	s.exitRequested = true
	c.Logger().Info("application requested exit", zap.Bool("exit_locked", s.exitLocked))
	return result.Success
}

func lockExit(s *SelfController, _ *service.Context, _ *ipc.Request, _ *ipc.Response) result.Code {
	s.exitLocked = true
	return result.Success
}

func unlockExit(s *SelfController, _ *service.Context, _ *ipc.Request, _ *ipc.Response) result.Code {
	s.exitLocked = false
	return result.Success
}

func getLibraryAppletLaunchableEvent(s *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.CopyHandle(s.launchableEvent.Get())
	return result.Success
}

func createManagedDisplayLayer(s *SelfController, c *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	provider, err := s.display.Resolve(c.Env())
	if err != nil {
		c.Logger().Warn("display provider unavailable", zap.Error(err))
		return result.FromError(err)
	}
	id, err := provider.CreateLayer(defaultDisplay)
	if err != nil {
		return result.FromError(err)
	}
	s.layers = append(s.layers, id)
	c.Logger().Debug("created managed display layer", zap.Uint64("layer", id))
	resp.U64(id)
	return result.Success
}

func setIdleTimeDetectionExtension(s *SelfController, _ *service.Context, req *ipc.Request, _ *ipc.Response) result.Code {
	v := req.U32()
	if rc := req.Result(); rc.Failed() {
		return rc
	}
	s.idleTimeDetectionExt = v
	return result.Success
}

func getIdleTimeDetectionExtension(s *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.U32(s.idleTimeDetectionExt)
	return result.Success
}

func isIlluminanceAvailable(_ *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.Bool(false)
	return result.Success
}

func setAutoSleepDisabled(s *SelfController, _ *service.Context, req *ipc.Request, _ *ipc.Response) result.Code {
	v := req.Bool()
	if rc := req.Result(); rc.Failed() {
		return rc
	}
	s.autoSleepDisabled = v
	return result.Success
}

func isAutoSleepDisabled(s *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.Bool(s.autoSleepDisabled)
	return result.Success
}

func getCurrentIlluminanceEx(_ *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.U32(0) // not over the sensor limit
	resp.F32(ambientLux)
	return result.Success
}

func getAccumulatedSuspendedTickValue(s *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.U64(s.suspendedTicks)
	return result.Success
}

func getAccumulatedSuspendedTickChangedEvent(s *SelfController, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.CopyHandle(s.suspendedTickEvent.Get())
	return result.Success
}
