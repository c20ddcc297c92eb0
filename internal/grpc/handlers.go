package grpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/godilite/sentiment-sync/internal/view"
)

const defaultGRPCTimeout = 10 * time.Second

var errInvalidRequest = errors.New("invalid request")

type DashboardHandlers struct {
	source SnapshotSource
	logger *zap.Logger
}

// NewDashboardHandlers serves snapshots of source.
func NewDashboardHandlers(source SnapshotSource, logger *zap.Logger) *DashboardHandlers {
	if source == nil {
		panic("nil SnapshotSource provided to NewDashboardHandlers")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandlers{
		source: source,
		logger: logger.Named("grpc-handler"),
	}
}

// GetSnapshot returns the mounted view's model. Request fields, all
// optional: kind (must match the mounted view), and for the navbar sort,
// direction, category and page.
func (h *DashboardHandlers) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	fields := req.GetFields()
	if kind := fields["kind"].GetStringValue(); kind != "" {
		want, err := view.ParseKind(kind)
		if err != nil {
			return nil, h.handleError(ctx, "GetSnapshot", fmt.Errorf("%w: %v", errInvalidRequest, err))
		}
		if want != h.source.Kind() {
			return nil, status.Errorf(codes.FailedPrecondition, "this process serves the %s view, not %s", h.source.Kind(), want)
		}
	}

	snap, err := h.snapshot(fields)
	if err != nil {
		return nil, h.handleError(ctx, "GetSnapshot", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, h.handleError(ctx, "GetSnapshot", err)
	}

	out, err := toStruct(snap)
	if err != nil {
		return nil, h.handleError(ctx, "GetSnapshot", err)
	}
	return out, nil
}

func (h *DashboardHandlers) snapshot(fields map[string]*structpb.Value) (view.Snapshot, error) {
	lister, ok := h.source.(ListSource)
	if !ok || !hasListOptions(fields) {
		return h.source.Snapshot(), nil
	}

	page := fields["page"].GetNumberValue()
	if page != math.Trunc(page) || page < 0 || page > math.MaxInt32 {
		return view.Snapshot{}, fmt.Errorf("%w: page must be a whole number up to %d", errInvalidRequest, math.MaxInt32)
	}
	opts, err := view.ParseListOptions(
		fields["sort"].GetStringValue(),
		fields["direction"].GetStringValue(),
		fields["category"].GetStringValue(),
		int(page),
	)
	if err != nil {
		return view.Snapshot{}, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return lister.List(opts), nil
}

func hasListOptions(fields map[string]*structpb.Value) bool {
	for _, k := range []string{"sort", "direction", "category", "page"} {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

// toStruct goes through JSON so the struct mirrors the snapshot's json tags.
func toStruct(snap view.Snapshot) (*structpb.Struct, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return structpb.NewStruct(m)
}

func (h *DashboardHandlers) handleError(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		h.logger.Warn("request canceled", zap.String("op", op))
		return status.Error(codes.Canceled, "request canceled")
	case context.DeadlineExceeded:
		h.logger.Warn("request timeout", zap.String("op", op))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}

	switch {
	case errors.Is(err, errInvalidRequest):
		h.logger.Info("invalid request", zap.String("op", op), zap.Error(err))
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		h.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}
