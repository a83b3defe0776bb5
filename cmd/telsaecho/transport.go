package main

import "net"

// tcpTransport adapts a net.Conn to telsa.Transport. Grounded on the
// read-loop-plus-callback shape of PoromKamal-distributed-matchmaking's
// TLSConn (a goroutine reading into a fixed buffer and handing bytes
// onward), rewired from blocking Read calls to telsa's OnData callback.
// Backpressure is not implemented: Write always reports accepted, since
// net.Conn.Write already blocks until the kernel accepts the bytes.
type tcpTransport struct {
	conn net.Conn

	onData  func([]byte)
	onClose func()
	onError func(error)

	pauseCh  chan struct{}
	resumeCh chan struct{}
}

func newTCPTransport(conn net.Conn) *tcpTransport {
	return &tcpTransport{
		conn:     conn,
		pauseCh:  make(chan struct{}, 1),
		resumeCh: make(chan struct{}, 1),
	}
}

// start launches the read loop. Split from newTCPTransport so the caller can
// finish registering callbacks (via telsa.NewStream) first.
func (t *tcpTransport) start() {
	go t.readLoop()
}

func (t *tcpTransport) readLoop() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-t.pauseCh:
			<-t.resumeCh
		default:
		}
		n, err := t.conn.Read(buf)
		if n > 0 && t.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.onData(chunk)
		}
		if err != nil {
			if t.onClose != nil {
				t.onClose()
			}
			return
		}
	}
}

func (t *tcpTransport) Write(p []byte) (bool, error) {
	_, err := t.conn.Write(p)
	return err == nil, err
}

func (t *tcpTransport) End() error     { return t.conn.Close() }
func (t *tcpTransport) Destroy() error { return t.conn.Close() }

func (t *tcpTransport) Pause() {
	select {
	case t.pauseCh <- struct{}{}:
	default:
	}
}

func (t *tcpTransport) Resume() {
	select {
	case t.resumeCh <- struct{}{}:
	default:
	}
}

func (t *tcpTransport) OnData(f func([]byte)) { t.onData = f }
func (t *tcpTransport) OnDrain(f func())      {} // Write never reports backpressure
func (t *tcpTransport) OnClose(f func())      { t.onClose = f }
func (t *tcpTransport) OnError(f func(error)) { t.onError = f }
