package am

//go:generate mockgen -destination=mocks/mock_layer_provider.go -package=mocks github.com/wippyai/hle/services/am LayerProvider

// LayerProvider creates managed display layers. The display subsystem owns
// the layers; callers hold the returned identifier and destroy it when done.
type LayerProvider interface {
	CreateLayer(display uint64) (uint64, error)
	DestroyLayer(id uint64) error
}

// DisplayProvider names the shared service that provides layers.
const DisplayProvider = "dispdrv"

// defaultDisplay is the display managed layers are created on.
const defaultDisplay uint64 = 0
