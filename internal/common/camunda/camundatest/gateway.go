// Package camundatest provides an in-memory Zeebe job client for handler tests.
package camundatest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

// Gateway records the job commands sent through it. Only CompleteJob,
// FailJob and ThrowError are implemented; other gateway calls panic.
type Gateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	Completed []*pb.CompleteJobRequest
	Failed    []*pb.FailJobRequest
	Thrown    []*pb.ThrowErrorRequest
}

func (g *Gateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Completed = append(g.Completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *Gateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Failed = append(g.Failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *Gateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Thrown = append(g.Thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

// CompletedVariables decodes the variables of the i-th completed job.
func (g *Gateway) CompletedVariables(i int) (map[string]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var vars map[string]interface{}
	err := json.Unmarshal([]byte(g.Completed[i].Variables), &vars)
	return vars, err
}

// JobClient builds real zeebe commands on top of a Gateway.
type JobClient struct {
	Gateway *Gateway
}

func NewJobClient() *JobClient {
	return &JobClient{Gateway: &Gateway{}}
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

// NewJob builds an activated job carrying variables as its payload.
func NewJob(key int64, taskType string, retries int32, variables map[string]interface{}) entities.Job {
	payload, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               taskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "deal-ingestion",
		ElementId:          "Activity_" + taskType,
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            retries,
		Variables:          string(payload),
	}}
}
