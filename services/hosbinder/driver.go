package hosbinder

import (
	"fmt"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
)

// Name is the port the driver is registered under.
const Name = "dispdrv"

// DefaultDisplay is the only display the driver knows.
const DefaultDisplay uint64 = 0

// DefaultMaxLayers bounds a driver created with a zero limit.
const DefaultMaxLayers = 64

type Driver struct {
	service.Base
	layers    map[uint64]uint64
	native    service.LazyEvent
	maxLayers int
	nextLayer uint64
}

func New(maxLayers int) *Driver {
	if maxLayers <= 0 {
		maxLayers = DefaultMaxLayers
	}
	return &Driver{
		layers:    make(map[uint64]uint64),
		native:    service.LazyEvent{Name: "hosbinder:native"},
		maxLayers: maxLayers,
		nextLayer: 1,
	}
}

// Factory returns a registry factory creating drivers bounded to maxLayers.
func Factory(maxLayers int) service.Factory {
	return func(service.Env) (service.Service, error) {
		return New(maxLayers), nil
	}
}

func (d *Driver) Commands() service.Commands { return driverTable.Bind(d) }

// CreateLayer allocates a managed layer on display. Identifiers are never
// reused within one driver.
func (d *Driver) CreateLayer(display uint64) (uint64, error) {
	d.Lock()
	defer d.Unlock()
	if display != DefaultDisplay {
		return 0, result.Wrap(result.DisplayNotAvailable,
			errors.NotFound(errors.PhaseDispatch, "display", fmt.Sprint(display)))
	}
	if len(d.layers) >= d.maxLayers {
		return 0, result.Wrap(result.TooManyLayers,
			errors.Exhausted(errors.PhaseDispatch, "display layer", d.maxLayers))
	}
	id := d.nextLayer
	d.nextLayer++
	d.layers[id] = display
	return id, nil
}

// DestroyLayer releases a layer so the slot can be reused.
func (d *Driver) DestroyLayer(id uint64) error {
	d.Lock()
	defer d.Unlock()
	if _, ok := d.layers[id]; !ok {
		return errors.NotFound(errors.PhaseDispatch, "display layer", fmt.Sprint(id))
	}
	delete(d.layers, id)
	return nil
}

// Layers returns the number of live layers.
func (d *Driver) Layers() int {
	d.Lock()
	defer d.Unlock()
	return len(d.layers)
}

var driverTable = service.MustTable("IHOSBinderDriver",
	service.Entry[*Driver]{
		Code: 1, Name: "AdjustRefcount", Stub: true,
		In:      []wit.Type{wit.S32{}, wit.S32{}, wit.S32{}},
		Handler: adjustRefcount,
	},
	service.Entry[*Driver]{
		Code: 2, Name: "GetNativeHandle",
		In:      []wit.Type{wit.S32{}, wit.U32{}},
		Handler: getNativeHandle,
	},
)

func adjustRefcount(_ *Driver, _ *service.Context, _ *ipc.Request, _ *ipc.Response) result.Code {
	return result.Success
}

func getNativeHandle(d *Driver, c *service.Context, req *ipc.Request, resp *ipc.Response) result.Code {
	binder := int32(req.U32())
	kind := req.U32()
	if rc := req.Result(); rc.Failed() {
		return rc
	}
	c.Logger().Debug("native handle requested", zap.Int32("binder", binder), zap.Uint32("type", kind))
	resp.CopyHandle(d.native.Get())
	return result.Success
}
