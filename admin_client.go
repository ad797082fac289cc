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
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const adminDialTimeout = 3 * time.Second

// AdminClient talks to the admin service of a running relay.
type AdminClient struct {
	conn *grpc.ClientConn
}

// DialAdmin connects to the admin socket of a running relay.
func DialAdmin(ctx context.Context, socket string, opts ...grpc.DialOption) (*AdminClient, error) {
	ctx, cancel := context.WithTimeout(ctx, adminDialTimeout)
	defer cancel()

	// Note: See https://github.com/grpc/grpc-go/issues/1846
	//	passthrough:///unix:///run/example.sock
	opts = append([]grpc.DialOption{grpc.WithInsecure(), grpc.WithBlock()}, opts...)
	conn, err := grpc.DialContext(ctx, fmt.Sprintf("passthrough:///unix://%s", socket), opts...)
	if err != nil {
		return nil, fmt.Errorf("error dialing socket %s: %v", socket, err)
	}
	return NewAdminClient(conn), nil
}

func NewAdminClient(conn *grpc.ClientConn) *AdminClient {
	return &AdminClient{conn: conn}
}

func (c *AdminClient) Close() error {
	return c.conn.Close()
}

// StreamInfo is one entry of ListStreams.
type StreamInfo struct {
	Path        string
	Publisher   string
	Subscribers int
}

func (c *AdminClient) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, adminMethod("ListStreams"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var streams []StreamInfo
	for _, v := range out.GetFields()["streams"].GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		streams = append(streams, StreamInfo{
			Path:        fields["path"].GetStringValue(),
			Publisher:   fields["publisher"].GetStringValue(),
			Subscribers: int(fields["subscribers"].GetNumberValue()),
		})
	}
	return streams, nil
}

// Stats returns the server counters keyed by name.
func (c *AdminClient) Stats(ctx context.Context) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, adminMethod("Stats"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// SetStreamKey generates a publish key for path and returns it.
func (c *AdminClient) SetStreamKey(ctx context.Context, path string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, adminMethod("SetStreamKey"), wrapperspb.String(path), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *AdminClient) RevokeStreamKey(ctx context.Context, path string) error {
	return c.conn.Invoke(ctx, adminMethod("RevokeStreamKey"), wrapperspb.String(path), new(emptypb.Empty))
}
