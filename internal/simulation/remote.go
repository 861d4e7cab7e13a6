package simulation

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/policy"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// RemoteSolver delegates simulations to a SolverService over gRPC.
type RemoteSolver struct {
	conn    *grpc.ClientConn
	target  string
	breaker policy.CircuitBreakerPolicy
}

// DialRemoteSolver connects to a solver service at addr.
func DialRemoteSolver(addr string, breaker policy.CircuitBreakerPolicy, opts ...grpc.DialOption) (*RemoteSolver, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial solver %s: %w", addr, err)
	}
	return NewRemoteSolver(conn, addr, breaker), nil
}

// NewRemoteSolver wraps an existing connection. A nil breaker disables circuit breaking.
func NewRemoteSolver(conn *grpc.ClientConn, target string, breaker policy.CircuitBreakerPolicy) *RemoteSolver {
	if breaker == nil {
		breaker = policy.NewCircuitBreakerPolicy(false, 0, 0, 0)
	}
	return &RemoteSolver{conn: conn, target: target, breaker: breaker}
}

// Close closes the underlying connection
func (r *RemoteSolver) Close() error {
	return r.conn.Close()
}

func (r *RemoteSolver) Simulate(ctx context.Context, req Request) (models.ResponseCurve, error) {
	if !r.breaker.AllowRequest(r.target, time.Now()) {
		return models.ResponseCurve{}, fmt.Errorf("%w: circuit open for %s", ErrUnavailable, r.target)
	}

	in, err := encodeRequest(req)
	if err != nil {
		return models.ResponseCurve{}, err
	}
	out := new(structpb.Struct)
	if err := r.conn.Invoke(ctx, simulateMethod, in, out); err != nil {
		if isTransportFailure(err) {
			r.breaker.RecordFailure(r.target, time.Now())
		}
		return models.ResponseCurve{}, fmt.Errorf("simulate rpc: %w", solverErrorFromStatus(err))
	}
	r.breaker.RecordSuccess(r.target, time.Now())

	return decodeCurve(out)
}

// isTransportFailure separates an unhealthy solver service from a model that failed to converge.
func isTransportFailure(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.Internal, codes.Unknown, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
