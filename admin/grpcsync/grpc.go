// Package grpcsync exposes the admin distribution component as a gRPC
// service for fleet rollout: node registration, pending-package pull and
// synced acknowledgement.
package grpcsync

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SyncServer is the server API for the Sync gRPC service.
//
// We intentionally use protobuf well-known wrapper types so this package does
// not require a protoc/codegen toolchain: structured messages travel as JSON
// inside BytesValue.
//
// Proto definition: sync.proto.
type SyncServer interface {
	Register(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	PendingPackages(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	MarkSynced(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedSyncServer can be embedded to have forward compatible implementations.
type UnimplementedSyncServer struct{}

func (UnimplementedSyncServer) Register(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}
func (UnimplementedSyncServer) PendingPackages(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PendingPackages not implemented")
}
func (UnimplementedSyncServer) MarkSynced(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkSynced not implemented")
}

// RegisterSyncServer registers the Sync service on a gRPC server.
func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&Sync_ServiceDesc, srv)
}

// SyncClient is the client API for the Sync gRPC service.
type SyncClient interface {
	Register(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	PendingPackages(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	MarkSynced(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type syncClient struct{ cc grpc.ClientConnInterface }

func NewSyncClient(cc grpc.ClientConnInterface) SyncClient { return &syncClient{cc: cc} }

func (c *syncClient) Register(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/beap.admin.grpcsync.v1.Sync/Register", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncClient) PendingPackages(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/beap.admin.grpcsync.v1.Sync/PendingPackages", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncClient) MarkSynced(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	err := c.cc.Invoke(ctx, "/beap.admin.grpcsync.v1.Sync/MarkSynced", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Sync_Register_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beap.admin.grpcsync.v1.Sync/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).Register(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_PendingPackages_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).PendingPackages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beap.admin.grpcsync.v1.Sync/PendingPackages"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).PendingPackages(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_MarkSynced_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).MarkSynced(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/beap.admin.grpcsync.v1.Sync/MarkSynced"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).MarkSynced(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Sync_ServiceDesc is the grpc.ServiceDesc for Sync service.
var Sync_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "beap.admin.grpcsync.v1.Sync",
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: _Sync_Register_Handler},
		{MethodName: "PendingPackages", Handler: _Sync_PendingPackages_Handler},
		{MethodName: "MarkSynced", Handler: _Sync_MarkSynced_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sync.proto",
}
