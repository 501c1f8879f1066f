package grpc_control

import (
	"context"
	"errors"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/refresh"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ControlService implements ControlServer on top of the refresh pipeline
type ControlService struct {
	Refresher interfaces.IRefreshController
	Cache     interfaces.IResponseCache
	Logger    *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(refresher interfaces.IRefreshController, responseCache interfaces.IResponseCache, log *logger.Logger) *ControlService {
	return &ControlService{
		Refresher: refresher,
		Cache:     responseCache,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// Refresh triggers one dataset, or all of them when the value is empty
func (s *ControlService) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	dataset := req.GetValue()
	if dataset == "" {
		acks := s.Refresher.RefreshAll()
		jobs := make([]interface{}, 0, len(acks))
		for _, ack := range acks {
			jobs = append(jobs, ackFields(ack))
		}
		s.Logger.Info("gRPC: refresh of all datasets requested (%d jobs)", len(jobs))
		return toStruct(map[string]interface{}{"jobs": jobs})
	}

	ack, err := s.Refresher.Refresh(dataset)
	if err != nil {
		return nil, toStatus(err)
	}
	s.Logger.Info("gRPC: refresh of %s acknowledged as job %s", dataset, ack.JobID)
	return toStruct(ackFields(ack))
}

// -----------------------------------------------------------------------------

func (s *ControlService) Status(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	states := s.Refresher.States()
	datasets := make([]interface{}, 0, len(states))
	for _, st := range states {
		entry := map[string]interface{}{
			"dataset":          st.Dataset,
			"phase":            st.Phase,
			"job_id":           st.JobID,
			"rerun_pending":    st.RerunPending,
			"snapshot_version": st.SnapshotVersion,
			"rows":             st.Rows,
			"last_error":       st.LastError,
		}
		if !st.LatestDate.IsZero() {
			entry["latest_date"] = st.LatestDate.Format(time.DateOnly)
		}
		if !st.LastCompletedAt.IsZero() {
			entry["last_completed_at"] = st.LastCompletedAt.Format(time.RFC3339)
		}
		datasets = append(datasets, entry)
	}

	errs := make(map[string]interface{})
	for k, v := range s.Refresher.ErrorCounts() {
		errs[k] = v
	}
	return toStruct(map[string]interface{}{"datasets": datasets, "errors": errs})
}

// -----------------------------------------------------------------------------

// InvalidateCache drops the cached responses of one dataset
func (s *ControlService) InvalidateCache(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "dataset is required")
	}
	if s.Cache == nil {
		return nil, status.Error(codes.FailedPrecondition, "response cache is not configured")
	}
	n := s.Cache.InvalidateDataset(req.GetValue())
	return toStruct(map[string]interface{}{"dataset": req.GetValue(), "invalidated": n})
}

// -----------------------------------------------------------------------------

func ackFields(ack models.MRefreshAck) map[string]interface{} {
	return map[string]interface{}{
		"job_id":    ack.JobID,
		"dataset":   ack.Dataset,
		"coalesced": ack.Coalesced,
		"status":    ack.Status,
	}
}

func toStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

func toStatus(err error) error {
	switch {
	case helpers.IsInvalidParameter(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, refresh.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, refresh.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
