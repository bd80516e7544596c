package bus

import "time"

// Event is a change notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The part before the first dot is the namespace subscribers
// filter on.
const (
	KindConnectionState = "connection.state_changed"
	KindConnectionNet   = "connection.network_changed"

	KindLedgerChanged   = "ledger.changed"
	KindChatListChanged = "chatlist.changed"
	KindTypingChanged   = "typing.changed"
	KindTranscript      = "transcript.appended"

	KindNotifyToast = "notify.toast"
	KindNotifyOpen  = "notify.open_chat"

	KindSessionTerminated = "session.terminated"

	// KindBridgeMessage carries a *model.Message injected by another part
	// of the process. It is the in-process delivery path into the router.
	KindBridgeMessage = "bridge.message"
)
