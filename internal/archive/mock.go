package archive

import (
	"context"
	"sort"
	"strings"
)

// MockClient is an in-memory Client.
type MockClient struct {
	PutErr    error
	ListErr   error
	DeleteErr error

	Objects         map[string][]byte // bucket/key → data
	ContentTypes    map[string]string
	DeletedPrefixes []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Objects:      make(map[string][]byte),
		ContentTypes: make(map[string]string),
	}
}

func (m *MockClient) Put(_ context.Context, bucket, key, contentType string, data []byte) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.Objects[bucket+"/"+key] = data
	m.ContentTypes[bucket+"/"+key] = contentType
	return nil
}

func (m *MockClient) List(_ context.Context, bucket, prefix string) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var keys []string
	for full := range m.Objects {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MockClient) DeletePrefix(_ context.Context, bucket, prefix string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for full := range m.Objects {
		if strings.HasPrefix(full, bucket+"/"+prefix) {
			delete(m.Objects, full)
		}
	}
	m.DeletedPrefixes = append(m.DeletedPrefixes, bucket+"/"+prefix)
	return nil
}
