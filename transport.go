package telsa

// Transport is the downward collaborator telsa drives: a reliable ordered
// byte-stream connection (TCP, typically), already established -- dialing it
// is out of scope per spec.md §1(a). Modeled as callback registration rather
// than io.Reader/io.Writer because the Stream façade above is itself
// callback-driven (spec.md §6), matching the single-threaded, event-driven
// scheduling model of spec.md §5.
//
// Stream holds its non-reentrant mutex while it calls Write, End, Destroy,
// Pause and Resume, so an implementation must not invoke a registered
// callback synchronously from inside one of those methods.
type Transport interface {
	// Write hands bytes to the transport. The returned bool is the
	// transport's backpressure signal: true means accepted without exceeding
	// its internal buffering limit, false means a future Drain callback will
	// fire once room frees up.
	Write(p []byte) (bool, error)
	// End performs a graceful shutdown (e.g. TCP half-close / FIN).
	End() error
	// Destroy tears the transport down immediately, without waiting for
	// buffered writes to flush.
	Destroy() error
	// Pause asks the transport to stop delivering Data callbacks until Resume.
	Pause()
	// Resume resumes Data callback delivery after a Pause.
	Resume()

	// OnData registers the callback invoked for each chunk of bytes the
	// transport receives, in arrival order.
	OnData(func(p []byte))
	// OnDrain registers the callback invoked once previously-refused writes
	// can be retried.
	OnDrain(func())
	// OnClose registers the callback invoked when the transport has fully
	// shut down.
	OnClose(func())
	// OnError registers the callback invoked on a transport-level error.
	OnError(func(err error))
}

// Sink is the upward collaborator: the consumer of telsa's decrypted
// application-data byte stream (an MQTT client, typically). Stream holds its
// non-reentrant mutex while it calls these methods, so they must not call
// back into the Stream synchronously.
type Sink interface {
	// OnData delivers one chunk of decrypted application data. A return of
	// false asks telsa to pause delivery until the next Stream.Read call
	// (spec.md §6 "reads are paused ... resumed on next read").
	OnData(p []byte) (acceptMore bool)
	// OnEnd signals end-of-stream (no more OnData will follow). It is called
	// on every termination except Destroy, whether graceful or not.
	OnEnd()
	// OnClose signals that the stream has fully terminated.
	OnClose()
	// OnError delivers a terminal error, if any, ahead of OnClose.
	OnError(err error)
}
