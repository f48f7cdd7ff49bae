package tlspump

import "sync"

// fakeLengthFramedEngine is a minimal, in-package stand-in for
// stubengine.LengthFramed, duplicated here only because stubengine imports
// this package (to implement the Engine contract) and an internal
// (package tlspump) test file importing stubengine would create an import
// cycle. It supports exactly the handshake scripting these internal tests
// exercise; external-package tests continue to use the full stubengine.
type fakeLengthFramedEngine struct {
	mu sync.Mutex

	script      []HandshakeStatus
	scriptIdx   int
	alpn        string
	tasksPerGen int
	taskErr     error

	inboundDone  bool
	outboundDone bool
}

func newFakeLengthFramedEngine() *fakeLengthFramedEngine {
	return &fakeLengthFramedEngine{script: []HandshakeStatus{HandshakeNotHandshaking}}
}

func newFakeScriptedHandshakeEngine(alpn string) *fakeLengthFramedEngine {
	return &fakeLengthFramedEngine{
		script: []HandshakeStatus{
			HandshakeNeedTask,
			HandshakeNeedTask,
			HandshakeNeedWrap,
			HandshakeFinished,
			HandshakeNotHandshaking,
		},
		alpn:        alpn,
		tasksPerGen: 1,
	}
}

func (e *fakeLengthFramedEngine) WithTaskError(err error) *fakeLengthFramedEngine {
	e.mu.Lock()
	e.taskErr = err
	e.mu.Unlock()
	return e
}

func (e *fakeLengthFramedEngine) PacketBufferSize() int { return 4096 }

func (e *fakeLengthFramedEngine) ApplicationBufferSize() int { return 4096 }

func (e *fakeLengthFramedEngine) ApplicationProtocol() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alpn
}

func (e *fakeLengthFramedEngine) IsInboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inboundDone
}

func (e *fakeLengthFramedEngine) IsOutboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outboundDone
}

func (e *fakeLengthFramedEngine) HandshakeStatus() HandshakeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentScriptStatus()
}

func (e *fakeLengthFramedEngine) currentScriptStatus() HandshakeStatus {
	if len(e.script) == 0 {
		return HandshakeNotHandshaking
	}
	if e.scriptIdx >= len(e.script) {
		return e.script[len(e.script)-1]
	}
	return e.script[e.scriptIdx]
}

func (e *fakeLengthFramedEngine) advanceScript() {
	if e.scriptIdx < len(e.script)-1 {
		e.scriptIdx++
	}
}

func (e *fakeLengthFramedEngine) DelegatedTasks() []DelegatedTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentScriptStatus() != HandshakeNeedTask {
		return nil
	}

	n := e.tasksPerGen
	if n <= 0 {
		n = 1
	}
	tasks := make([]DelegatedTask, n)
	for i := range tasks {
		tasks[i] = e.makeTask()
	}
	e.advanceScript()
	return tasks
}

func (e *fakeLengthFramedEngine) makeTask() DelegatedTask {
	return func() error {
		e.mu.Lock()
		err := e.taskErr
		e.mu.Unlock()
		return err
	}
}

func (e *fakeLengthFramedEngine) Wrap(srcBuffers [][]byte, dst []byte) (EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := e.currentScriptStatus()

	if status == HandshakeNeedWrap {
		e.advanceScript()
		return EngineResult{
			Status:        StatusOK,
			Handshake:     e.currentScriptStatus(),
			BytesProduced: 0,
			Dest:          dst[:0],
		}, nil
	}

	return EngineResult{Status: StatusOK, Handshake: status}, nil
}

func (e *fakeLengthFramedEngine) Unwrap(src []byte, dst []byte) (EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineResult{Status: StatusBufferUnderflow, Handshake: e.currentScriptStatus()}, nil
}

func (e *fakeLengthFramedEngine) SignalPeerClose() {
	e.mu.Lock()
	e.inboundDone = true
	e.mu.Unlock()
}
