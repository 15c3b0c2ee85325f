package grpcsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"beap.dev/beap/admin"
)

// Client is the node-side view of the Sync service.
type Client struct {
	cc     *grpc.ClientConn
	client SyncClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewSyncClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(context.Background(), c.Timeout)
	}
	return context.Background(), func() {}
}

// Register announces this node to the distributor and returns its registry view.
func (c *Client) Register(nodeID string, groups []string) (*admin.PolicyNode, error) {
	req, err := json.Marshal(registerRequest{ID: nodeID, Groups: groups})
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Register(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return nil, err
	}
	var node admin.PolicyNode
	if err := json.Unmarshal(reply.GetValue(), &node); err != nil {
		return nil, fmt.Errorf("grpcsync: decode node reply: %w", err)
	}
	return &node, nil
}

// PendingPackages pulls the packages this node still has to apply.
func (c *Client) PendingPackages(nodeID string) ([]*admin.AdminPolicyPackage, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.PendingPackages(ctx, wrapperspb.String(nodeID))
	if err != nil {
		return nil, err
	}
	var pkgs []*admin.AdminPolicyPackage
	if err := json.Unmarshal(reply.GetValue(), &pkgs); err != nil {
		return nil, fmt.Errorf("grpcsync: decode package list: %w", err)
	}
	return pkgs, nil
}

// MarkSynced acknowledges that this node applied packageID. Idempotent.
func (c *Client) MarkSynced(nodeID, packageID string) error {
	req, err := json.Marshal(markSyncedRequest{NodeID: nodeID, PackageID: packageID})
	if err != nil {
		return err
	}

	ctx, cancel := c.ctx()
	defer cancel()

	_, err = c.client.MarkSynced(ctx, wrapperspb.Bytes(req))
	return err
}
