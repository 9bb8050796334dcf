package monitor

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a monitor server.
type Client struct {
	heap    *connect.Client[HeapRequest, HeapResponse]
	threads *connect.Client[ThreadsRequest, ThreadsResponse]
	classes *connect.Client[ClassesRequest, ClassesResponse]
	collect *connect.Client[CollectRequest, CollectResponse]
	profile *connect.Client[ProfileRequest, ProfileResponse]
}

// NewClient returns a client for the server at baseURL, for example
// "http://127.0.0.1:8700".
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	return &Client{
		heap:    connect.NewClient[HeapRequest, HeapResponse](httpClient, baseURL+HeapProcedure, opts...),
		threads: connect.NewClient[ThreadsRequest, ThreadsResponse](httpClient, baseURL+ThreadsProcedure, opts...),
		classes: connect.NewClient[ClassesRequest, ClassesResponse](httpClient, baseURL+ClassesProcedure, opts...),
		collect: connect.NewClient[CollectRequest, CollectResponse](httpClient, baseURL+CollectProcedure, opts...),
		profile: connect.NewClient[ProfileRequest, ProfileResponse](httpClient, baseURL+ProfileProcedure, opts...),
	}
}

func (c *Client) Heap(ctx context.Context) (*HeapResponse, error) {
	res, err := c.heap.CallUnary(ctx, connect.NewRequest(&HeapRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Threads(ctx context.Context) (*ThreadsResponse, error) {
	res, err := c.threads.CallUnary(ctx, connect.NewRequest(&ThreadsRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Classes lists loaded classes whose descriptor starts with prefix.
func (c *Client) Classes(ctx context.Context, prefix string) (*ClassesResponse, error) {
	res, err := c.classes.CallUnary(ctx, connect.NewRequest(&ClassesRequest{Prefix: prefix}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Collect forces a collection and returns the heap afterwards.
func (c *Client) Collect(ctx context.Context, reason string) (*CollectResponse, error) {
	res, err := c.collect.CallUnary(ctx, connect.NewRequest(&CollectRequest{Reason: reason}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Profile returns up to limit of the most invoked methods.
func (c *Client) Profile(ctx context.Context, limit int) (*ProfileResponse, error) {
	res, err := c.profile.CallUnary(ctx, connect.NewRequest(&ProfileRequest{Limit: limit}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
