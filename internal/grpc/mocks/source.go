package mocks

import (
	"github.com/godilite/sentiment-sync/internal/view"
)

type MockSnapshotSource struct {
	KindValue    view.Kind
	SnapshotFunc func() view.Snapshot
}

func (m *MockSnapshotSource) Kind() view.Kind {
	return m.KindValue
}

func (m *MockSnapshotSource) Snapshot() view.Snapshot {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc()
	}
	return view.Snapshot{Kind: m.KindValue, Status: view.StatusLoading}
}

// MockListSource also re-cuts lists and remembers the last options.
type MockListSource struct {
	MockSnapshotSource
	ListFunc func(opts view.ListOptions) view.Snapshot

	LastOptions *view.ListOptions
}

func (m *MockListSource) List(opts view.ListOptions) view.Snapshot {
	m.LastOptions = &opts
	if m.ListFunc != nil {
		return m.ListFunc(opts)
	}
	return m.Snapshot()
}
