package body

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// testLogger creates a quiet test logger
func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(logger)
}

// fakeRuntime parses with encoding/json and keeps a pending exception slot.
type fakeRuntime struct {
	sync.Mutex
	pending    any
	hasPending bool
	maxLength  int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{maxLength: 1 << 20}
}

func (r *fakeRuntime) ParseJSON(text []uint16) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(string(utf16.Decode(text))), &v); err != nil {
		r.pending, r.hasPending = errors.New("SyntaxError: "+err.Error()), true
		return nil, false
	}
	return v, true
}

func (r *fakeRuntime) TakePendingException() (any, bool) {
	if !r.hasPending {
		return nil, false
	}
	e := r.pending
	r.pending, r.hasPending = nil, false
	return e, true
}

func (r *fakeRuntime) NewArrayBuffer(data []byte) (any, bool) {
	if len(data) > r.maxLength {
		return nil, false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, true
}

// MockRuntime is a testify mock of Runtime.
type MockRuntime struct {
	mock.Mock
	sync.Mutex
}

func (m *MockRuntime) ParseJSON(text []uint16) (any, bool) {
	args := m.Called(text)
	return args.Get(0), args.Bool(1)
}

func (m *MockRuntime) TakePendingException() (any, bool) {
	args := m.Called()
	return args.Get(0), args.Bool(1)
}

func (m *MockRuntime) NewArrayBuffer(data []byte) (any, bool) {
	args := m.Called(data)
	return args.Get(0), args.Bool(1)
}

// MockRecorder is a testify mock of Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) ConsumptionStarted(kind Kind) {
	m.Called(kind)
}

func (m *MockRecorder) ConsumptionSettled(kind Kind, code string, size int, duration time.Duration) {
	m.Called(kind, code, size, duration)
}

// stubSource is a Source with directly settable state.
type stubSource struct {
	used        bool
	locked      bool
	buffer      []byte
	ready       bool
	contentType []byte
	takes       int
	sinkCalls   int
	kind        Kind
}

func (s *stubSource) BodyUsed() bool { return s.used }
func (s *stubSource) IsLocked() bool { return s.locked }

func (s *stubSource) SetBodySink(_ *Sink, kind Kind) {
	s.used = true
	s.sinkCalls++
	s.kind = kind
}

func (s *stubSource) TakeBody() ([]byte, bool) {
	s.takes++
	if !s.ready {
		return nil, false
	}
	s.ready = false
	buf := s.buffer
	s.buffer = nil
	return buf, true
}

func (s *stubSource) MIMEType() []byte { return s.contentType }

func newTestConsumer() *Consumer {
	return NewConsumer(NewDecoders(newFakeRuntime()), testLogger())
}
