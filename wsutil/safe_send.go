package wsutil

import "log/slog"

// SafeSend delivers data to a client send channel without blocking and
// without panicking if the channel was closed by a concurrent unregister.
// Slow or gone clients drop the message.
func SafeSend(ch chan []byte, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("send to closed client channel", "tag", "ws", "recovered", r)
		}
	}()
	select {
	case ch <- data:
	default:
	}
}
