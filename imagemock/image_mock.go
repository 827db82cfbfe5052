// Package imagemock is a generated-style gomock double for fat32.Image,
// used to exercise I/O failure paths that a real in-memory backing never
// takes (memBacking's ReadAt/WriteAt cannot fail).
package imagemock

import (
	"reflect"

	"github.com/golang/mock/gomock"
)

// MockImage is a mock of the fat32.Image interface.
type MockImage struct {
	ctrl     *gomock.Controller
	recorder *MockImageMockRecorder
}

// MockImageMockRecorder is the recorder for MockImage's expected calls.
type MockImageMockRecorder struct {
	mock *MockImage
}

// NewMockImage returns a new mock controlled by ctrl.
func NewMockImage(ctrl *gomock.Controller) *MockImage {
	mock := &MockImage{ctrl: ctrl}
	mock.recorder = &MockImageMockRecorder{mock: mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockImage) EXPECT() *MockImageMockRecorder {
	return m.recorder
}

func (m *MockImage) ReadAt(offset int64, length int) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadAt", offset, length)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockImageMockRecorder) ReadAt(offset, length interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadAt", reflect.TypeOf((*MockImage)(nil).ReadAt), offset, length)
}

func (m *MockImage) WriteAt(offset int64, data []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WriteAt", offset, data)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockImageMockRecorder) WriteAt(offset, data interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WriteAt", reflect.TypeOf((*MockImage)(nil).WriteAt), offset, data)
}

func (m *MockImage) Flush() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Flush")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockImageMockRecorder) Flush() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Flush", reflect.TypeOf((*MockImage)(nil).Flush))
}

func (m *MockImage) Size() (int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Size")
	ret0, _ := ret[0].(int64)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockImageMockRecorder) Size() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Size", reflect.TypeOf((*MockImage)(nil).Size))
}
