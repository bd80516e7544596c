package router

import (
	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/model"
)

// Delivery paths a message can arrive through.
const (
	PathTransport = "transport"
	PathLoopback  = "loopback"
	PathBridge    = "bridge"
)

// Delivery is a message together with the path that delivered it.
type Delivery struct {
	Path    string
	Message *model.Message
}

// Bridge lets other parts of the process inject messages. Injected messages
// travel over the bus and reach the router through the session loop.
type Bridge struct {
	bus *bus.Bus
}

// NewBridge creates a bridge publishing on b.
func NewBridge(b *bus.Bus) *Bridge {
	return &Bridge{bus: b}
}

// Inject publishes m on the bridge path.
func (br *Bridge) Inject(m *model.Message) {
	br.bus.Emit(bus.KindBridgeMessage, Delivery{Path: PathBridge, Message: m})
}

// Subscribe returns the stream of bridge deliveries. bufSize sizes the
// channel; deliveries are dropped when it is full.
func (br *Bridge) Subscribe(bufSize int) (<-chan bus.Event, func()) {
	return br.bus.Subscribe(bufSize, bus.KindBridgeMessage)
}
