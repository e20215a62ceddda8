package mock

import (
	"fmt"
	"sort"

	"github.com/harbormail/mailexport/pkg/base"
)

// MockItem is a base.Item over a plain field map. SaveAs records the
// requested paths and returns SaveErr.
type MockItem struct {
	Fields  map[string]interface{}
	SaveErr error
	Saved   []string
}

func NewMockItem(fields map[string]interface{}) *MockItem {
	return &MockItem{Fields: fields}
}

func (m *MockItem) Field(name string) (interface{}, error) {
	v, ok := m.Fields[name]
	if !ok {
		return nil, fmt.Errorf("no field %q", name)
	}
	return v, nil
}

func (m *MockItem) HasField(name string) bool {
	_, ok := m.Fields[name]
	return ok
}

func (m *MockItem) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MockItem) SaveAs(path string) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saved = append(m.Saved, path)
	return nil
}

// MockFolder is a base.Folder over static slices. ItemsErr/ChildrenErr make
// the folder behave like an unrecognized folder object.
type MockFolder struct {
	Path        string
	ItemList    []base.Item
	Subfolders  []base.Folder
	ItemsErr    error
	ChildrenErr error

	// LastFilter records the filter expression passed to Items.
	LastFilter string
}

func (f *MockFolder) FullPath() string { return f.Path }

func (f *MockFolder) Items(filter string) ([]base.Item, error) {
	f.LastFilter = filter
	if f.ItemsErr != nil {
		return nil, f.ItemsErr
	}
	return f.ItemList, nil
}

func (f *MockFolder) Children() ([]base.Folder, error) {
	if f.ChildrenErr != nil {
		return nil, f.ChildrenErr
	}
	return f.Subfolders, nil
}
