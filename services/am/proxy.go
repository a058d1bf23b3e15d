package am

import (
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
)

// Port is the name applications connect to.
const Port = "appletOE"

// ProxyService is the appletOE port.
type ProxyService struct {
	service.Base
}

func NewProxyService() *ProxyService { return &ProxyService{} }

func (p *ProxyService) Commands() service.Commands { return proxyServiceTable.Bind(p) }

// ApplicationProxy hands out the per-application applet interfaces.
type ApplicationProxy struct {
	service.Base
	processID uint64
}

func (p *ApplicationProxy) Commands() service.Commands { return applicationProxyTable.Bind(p) }

// ProcessID returns the process id the proxy was opened for.
func (p *ApplicationProxy) ProcessID() uint64 { return p.processID }

var proxyServiceTable = service.MustTable("IApplicationProxyService",
	service.Entry[*ProxyService]{
		Code: 0, Name: "OpenApplicationProxy",
		In:      []wit.Type{wit.U64{}},
		Handler: openApplicationProxy,
	},
)

var applicationProxyTable = service.MustTable("IApplicationProxy",
	service.Entry[*ApplicationProxy]{Code: 1, Name: "GetSelfController", Handler: getSelfController},
)

func openApplicationProxy(_ *ProxyService, c *service.Context, req *ipc.Request, resp *ipc.Response) result.Code {
	pid := req.U64()
	if rc := req.Result(); rc.Failed() {
		return rc
	}
	c.Logger().Debug("opening application proxy", zap.Uint64("pid", pid))
	resp.MoveHandle(&ApplicationProxy{processID: pid})
	return result.Success
}

func getSelfController(_ *ApplicationProxy, _ *service.Context, _ *ipc.Request, resp *ipc.Response) result.Code {
	resp.MoveHandle(NewSelfController())
	return result.Success
}
