// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package relay

import (
	"context"

	"github.com/kris-nova/logger"
	"github.com/kris-nova/relay/rtmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const AdminServiceName = "relay.Admin"

// StatNames are the keys of the Stats response in display order.
var StatNames = []string{
	"connections_accepted",
	"connections_active",
	"handshakes_completed",
	"bytes_rx",
	"bytes_tx",
	"messages_rx",
	"messages_per_second",
	"packages_enqueued",
	"packages_dropped",
	"buffers_outstanding",
	"started",
}

// AdminService is the local control surface of a running relay. It is
// served over gRPC on a unix domain socket.
type AdminService interface {
	ListStreams(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetStreamKey(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	RevokeStreamKey(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// AdminServer implements AdminService on top of an RTMP server.
type AdminServer struct {
	server *rtmp.Server
}

func NewAdminServer(server *rtmp.Server) *AdminServer {
	return &AdminServer{server: server}
}

// RegisterAdminServer registers srv with s.
func RegisterAdminServer(s *grpc.Server, srv AdminService) {
	s.RegisterService(&adminServiceDesc, srv)
}

func (a *AdminServer) ListStreams(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var streams []interface{}
	for _, info := range a.server.Streams() {
		streams = append(streams, map[string]interface{}{
			"path":        info.Path,
			"publisher":   info.PublisherID,
			"subscribers": int64(info.Subscribers),
		})
	}
	s, err := structpb.NewStruct(map[string]interface{}{"streams": streams})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "streams: %v", err)
	}
	return s, nil
}

func (a *AdminServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	m := a.server.Stats()
	s, err := structpb.NewStruct(map[string]interface{}{
		"connections_accepted": m.ConnectionsAccepted,
		"connections_active":   m.ConnectionsActive,
		"handshakes_completed": m.HandshakesCompleted,
		"bytes_rx":             m.BytesRX,
		"bytes_tx":             m.BytesTX,
		"messages_rx":          m.MessagesRX,
		"packages_enqueued":    m.PackagesEnqueued,
		"packages_dropped":     m.PackagesDropped,
		"messages_per_second":  m.MessagesPerSecond(),
		"started":              m.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		"buffers_outstanding":  a.server.BufferPool().Outstanding(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "stats: %v", err)
	}
	return s, nil
}

func (a *AdminServer) SetStreamKey(ctx context.Context, path *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if path.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "empty stream path")
	}
	key := a.server.StreamKeys().SetKey(path.GetValue())
	logger.Info("Stream key set for %s", path.GetValue())
	return wrapperspb.String(key), nil
}

func (a *AdminServer) RevokeStreamKey(ctx context.Context, path *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if !a.server.StreamKeys().DeleteKey(path.GetValue()) {
		return nil, status.Errorf(codes.NotFound, "no stream key for %s", path.GetValue())
	}
	logger.Info("Stream key revoked for %s", path.GetValue())
	return &emptypb.Empty{}, nil
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListStreams",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(emptypb.Empty)
				return unary(srv, ctx, dec, interceptor, in, "ListStreams", func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminService).ListStreams(ctx, req.(*emptypb.Empty))
				})
			},
		},
		{
			MethodName: "Stats",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(emptypb.Empty)
				return unary(srv, ctx, dec, interceptor, in, "Stats", func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminService).Stats(ctx, req.(*emptypb.Empty))
				})
			},
		},
		{
			MethodName: "SetStreamKey",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.StringValue)
				return unary(srv, ctx, dec, interceptor, in, "SetStreamKey", func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminService).SetStreamKey(ctx, req.(*wrapperspb.StringValue))
				})
			},
		},
		{
			MethodName: "RevokeStreamKey",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.StringValue)
				return unary(srv, ctx, dec, interceptor, in, "RevokeStreamKey", func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AdminService).RevokeStreamKey(ctx, req.(*wrapperspb.StringValue))
				})
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/admin.go",
}

// unary decodes the request into in and runs handler behind the interceptor.
func unary(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor, in interface{}, method string, handler grpc.UnaryHandler) (interface{}, error) {
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: adminMethod(method),
	}
	return interceptor(ctx, in, info, handler)
}

func adminMethod(name string) string {
	return "/" + AdminServiceName + "/" + name
}
