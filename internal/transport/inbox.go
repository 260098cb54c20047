package transport

import "sync"

// inbox 服务端消息缓冲，关闭后丢弃新消息
type inbox struct {
	mu     sync.RWMutex
	ch     chan Inbound
	closed bool
}

func newInbox(size int) *inbox {
	return &inbox{ch: make(chan Inbound, size)}
}

// push 非阻塞投递，通道已满或已关闭时返回 false
func (i *inbox) push(msg Inbound) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return false
	}

	select {
	case i.ch <- msg:
		return true
	default:
		return false
	}
}

func (i *inbox) close() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.closed {
		i.closed = true
		close(i.ch)
	}
}
