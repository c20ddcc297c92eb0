package grpc

import (
	"github.com/godilite/sentiment-sync/internal/view"
)

// SnapshotSource is the mounted view the dashboard reports on.
type SnapshotSource interface {
	Kind() view.Kind
	Snapshot() view.Snapshot
}

// ListSource is implemented by views whose list can be re-cut per request.
type ListSource interface {
	List(opts view.ListOptions) view.Snapshot
}
