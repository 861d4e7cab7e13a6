package simulation

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/fem"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/logger"
)

const (
	solverServiceName = "pilecal.v1.SolverService"
	simulateMethod    = "/" + solverServiceName + "/Simulate"
)

// solverServiceServer is the handler contract of the solver service.
type solverServiceServer interface {
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var solverServiceDesc = grpc.ServiceDesc{
	ServiceName: solverServiceName,
	HandlerType: (*solverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Simulate", Handler: simulateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pilecal/v1/solver.proto",
}

func simulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(solverServiceServer).Simulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: simulateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(solverServiceServer).Simulate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SolverGRPCServer exposes a Solver over gRPC.
type SolverGRPCServer struct {
	solver Solver
}

// NewSolverGRPCServer creates a server backed by solver.
func NewSolverGRPCServer(solver Solver) *SolverGRPCServer {
	return &SolverGRPCServer{solver: solver}
}

// Register attaches the solver service to s.
func (s *SolverGRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&solverServiceDesc, s)
}

func (s *SolverGRPCServer) Simulate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	curve, err := s.solver.Simulate(ctx, req)
	if err != nil {
		logger.Debug("remote simulation failed", "error", err)
		return nil, statusFromSolverError(err)
	}

	out, err := encodeCurve(curve)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func statusFromSolverError(err error) error {
	switch {
	case errors.Is(err, fem.ErrDiverged):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, fem.ErrUnstable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, fem.ErrInvalidParams), errors.Is(err, fem.ErrInvalidModel):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// solverErrorFromStatus reverses statusFromSolverError on the client side.
func solverErrorFromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Aborted:
		return errors.Join(fem.ErrDiverged, errors.New(st.Message()))
	case codes.FailedPrecondition, codes.InvalidArgument:
		return errors.Join(fem.ErrUnstable, errors.New(st.Message()))
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Canceled:
		return context.Canceled
	case codes.Unavailable:
		return errors.Join(ErrUnavailable, errors.New(st.Message()))
	default:
		return err
	}
}
