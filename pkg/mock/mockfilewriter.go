package mock

import (
	"bytes"
	"os"

	"github.com/harbormail/mailexport/pkg/utils"
)

type MockWriter struct {
	Buffer *bytes.Buffer
	Err    error
}

func (m MockWriter) Write(p []byte) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Buffer.Write(p)
}

func (m MockWriter) Flush() error {
	return m.Err
}

// MockFileManager is an in-memory utils.FileManager. Existing seeds the
// PathExists probe; WriteFile and Create record content and mark the path as
// existing, so repeated resolver calls see earlier "writes".
type MockFileManager struct {
	Err      error
	MkdirErr error
	Writers  map[string]MockWriter
	Mkdirs   []string
	Existing map[string]bool

	// Ops records mkdir/create/write calls in order.
	Ops []string
}

func NewMockFileManager() *MockFileManager {
	return &MockFileManager{
		Writers:  map[string]MockWriter{},
		Existing: map[string]bool{},
	}
}

func (m *MockFileManager) Create(name string) (utils.Writer, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	writer := MockWriter{Buffer: new(bytes.Buffer)}
	m.Writers[name] = writer
	m.Existing[name] = true
	m.Ops = append(m.Ops, "create "+name)
	return writer, nil
}

func (m *MockFileManager) Close() error {
	return m.Err
}

func (m *MockFileManager) MkdirAll(path string, perm os.FileMode) error {
	if m.MkdirErr != nil {
		return m.MkdirErr
	}
	m.Mkdirs = append(m.Mkdirs, path)
	m.Existing[path] = true
	m.Ops = append(m.Ops, "mkdir "+path)
	return nil
}

func (m *MockFileManager) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if m.Err != nil {
		return m.Err
	}
	m.Writers[filename] = MockWriter{Buffer: bytes.NewBuffer(data)}
	m.Existing[filename] = true
	m.Ops = append(m.Ops, "write "+filename)
	return nil
}

func (m *MockFileManager) PathExists(path string) bool {
	return m.Existing[path]
}
