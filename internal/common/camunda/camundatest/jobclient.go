// Package camundatest provides a worker.JobClient whose gateway calls are
// recorded by testify, for exercising job handlers end to end.
package camundatest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

var _ worker.JobClient = (*JobClient)(nil)

// Gateway mocks the three job commands. Any other gateway call panics.
type Gateway struct {
	mock.Mock
	pb.GatewayClient
}

func (g *Gateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	args := g.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pb.CompleteJobResponse), args.Error(1)
}

func (g *Gateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	args := g.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pb.FailJobResponse), args.Error(1)
}

func (g *Gateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	args := g.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pb.ThrowErrorResponse), args.Error(1)
}

// JobClient builds real zeebe commands on top of Gateway.
type JobClient struct {
	Gateway *Gateway
}

func NewJobClient() *JobClient {
	return &JobClient{Gateway: new(Gateway)}
}

func noRetry(context.Context, error) bool { return false }

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.Gateway, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.Gateway, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.Gateway, noRetry)
}

// ExpectComplete accepts one CompleteJob call for jobKey.
func (c *JobClient) ExpectComplete(jobKey int64) *mock.Call {
	return c.Gateway.On("CompleteJob", mock.MatchedBy(func(in *pb.CompleteJobRequest) bool {
		return in.JobKey == jobKey
	})).Return(&pb.CompleteJobResponse{}, nil).Once()
}

// ExpectFail accepts one FailJob call for jobKey.
func (c *JobClient) ExpectFail(jobKey int64) *mock.Call {
	return c.Gateway.On("FailJob", mock.MatchedBy(func(in *pb.FailJobRequest) bool {
		return in.JobKey == jobKey
	})).Return(&pb.FailJobResponse{}, nil).Once()
}

// ExpectThrow accepts one ThrowError call for jobKey.
func (c *JobClient) ExpectThrow(jobKey int64) *mock.Call {
	return c.Gateway.On("ThrowError", mock.MatchedBy(func(in *pb.ThrowErrorRequest) bool {
		return in.JobKey == jobKey
	})).Return(&pb.ThrowErrorResponse{}, nil).Once()
}

// Completed returns the variables of the last CompleteJob call, decoded.
func (c *JobClient) Completed(t *testing.T) map[string]interface{} {
	t.Helper()
	in := lastRequest[*pb.CompleteJobRequest](t, c.Gateway, "CompleteJob")
	vars := map[string]interface{}{}
	if in.Variables != "" {
		require.NoError(t, json.Unmarshal([]byte(in.Variables), &vars))
	}
	return vars
}

// Failed returns the last FailJob request.
func (c *JobClient) Failed(t *testing.T) *pb.FailJobRequest {
	t.Helper()
	return lastRequest[*pb.FailJobRequest](t, c.Gateway, "FailJob")
}

// Thrown returns the last ThrowError request.
func (c *JobClient) Thrown(t *testing.T) *pb.ThrowErrorRequest {
	t.Helper()
	return lastRequest[*pb.ThrowErrorRequest](t, c.Gateway, "ThrowError")
}

func lastRequest[T any](t *testing.T, g *Gateway, method string) T {
	t.Helper()
	var out T
	found := false
	for _, call := range g.Calls {
		if call.Method == method {
			out = call.Arguments.Get(0).(T)
			found = true
		}
	}
	require.True(t, found, "no %s call", method)
	return out
}

// Job builds an activated job with the given variables.
func Job(t *testing.T, key int64, taskType string, retries int32, variables map[string]interface{}) entities.Job {
	t.Helper()
	raw, err := json.Marshal(variables)
	require.NoError(t, err)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		ProcessInstanceKey: 7,
		Type:               taskType,
		Retries:            retries,
		Variables:          string(raw),
	}}
}
