package grpcsync

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"beap.dev/beap/admin"
)

// registerRequest is the wire shape for Register.
type registerRequest struct {
	ID     string   `json:"id"`
	Groups []string `json:"groups,omitempty"`
}

// markSyncedRequest is the wire shape for MarkSynced.
type markSyncedRequest struct {
	NodeID    string `json:"nodeId"`
	PackageID string `json:"packageId"`
}

// Server exposes an admin.Distributor over the Sync gRPC service.
type Server struct {
	UnimplementedSyncServer
	Distributor *admin.Distributor
}

func (s *Server) Register(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Distributor == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing distributor")
	}
	var req registerRequest
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed register request")
	}
	node, err := s.Distributor.RegisterNode(req.ID, req.Groups)
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := json.Marshal(node)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode node")
	}
	return wrapperspb.Bytes(out), nil
}

func (s *Server) PendingPackages(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Distributor == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing distributor")
	}
	pkgs, err := s.Distributor.GetPendingPackagesForNode(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	if pkgs == nil {
		pkgs = []*admin.AdminPolicyPackage{}
	}
	out, err := json.Marshal(pkgs)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode packages")
	}
	return wrapperspb.Bytes(out), nil
}

func (s *Server) MarkSynced(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.Distributor == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing distributor")
	}
	var req markSyncedRequest
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed mark-synced request")
	}
	if err := s.Distributor.MarkNodeSynced(req.NodeID, req.PackageID); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(true), nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case admin.IsKind(err, admin.KindNotFound):
		return status.Error(codes.NotFound, err.Error())
	case admin.IsKind(err, admin.KindValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case admin.IsKind(err, admin.KindIntegrity):
		return status.Error(codes.DataLoss, err.Error())
	case admin.IsKind(err, admin.KindCrypto):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
