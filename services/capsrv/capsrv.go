// Package capsrv implements the screenshot application service ("caps:su").
package capsrv

import (
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
)

const Name = "caps:su"

// ScreenShotApplicationService records the capture library version the
// application was built against. Capture itself is not emulated.
type ScreenShotApplicationService struct {
	service.Base
	shimVersion uint64
	versionSet  bool
}

func New() *ScreenShotApplicationService { return &ScreenShotApplicationService{} }

func (s *ScreenShotApplicationService) Commands() service.Commands { return table.Bind(s) }

// ShimLibraryVersion returns the version last reported by the application.
func (s *ScreenShotApplicationService) ShimLibraryVersion() (uint64, bool) {
	s.Lock()
	defer s.Unlock()
	return s.shimVersion, s.versionSet
}

var table = service.MustTable("IScreenShotApplicationService",
	service.Entry[*ScreenShotApplicationService]{
		Code: 0x20, Name: "SetShimLibraryVersion",
		In:      []wit.Type{wit.U64{}, wit.U64{}},
		Handler: setShimLibraryVersion,
	},
)

func setShimLibraryVersion(s *ScreenShotApplicationService, c *service.Context, req *ipc.Request, _ *ipc.Response) result.Code {
	version := req.U64()
	aruid := req.U64()
	if rc := req.Result(); rc.Failed() {
		return rc
	}
	s.shimVersion, s.versionSet = version, true
	c.Logger().Debug("shim library version", zap.Uint64("version", version), zap.Uint64("aruid", aruid))
	return result.Success
}

type state struct {
	ShimVersion uint64 `cbor:"1,keyasint"`
	VersionSet  bool   `cbor:"2,keyasint"`
}

func (s *ScreenShotApplicationService) SnapshotState() ([]byte, error) {
	return service.EncodeState(state{ShimVersion: s.shimVersion, VersionSet: s.versionSet})
}

func (s *ScreenShotApplicationService) RestoreState(data []byte) error {
	var st state
	if err := service.DecodeState(data, &st); err != nil {
		return err
	}
	s.shimVersion, s.versionSet = st.ShimVersion, st.VersionSet
	return nil
}
