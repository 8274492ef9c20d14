// Package grpcapi implements the calcengine.v1.Calculator gRPC service and
// the long-running Operations service its solves are reported through.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"

	"github.com/enjicalc/calc-engine/pkg/formula"
	"github.com/enjicalc/calc-engine/pkg/store"
)

// Server implements the Calculator and Operations services.
type Server struct {
	longrunningpb.UnimplementedOperationsServer

	store *store.Store
	grpc  *grpc.Server
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store) *Server {
	srv := &Server{store: s}

	gs := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	RegisterCalculatorServer(gs, srv)
	longrunningpb.RegisterOperationsServer(gs, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("elapsed", time.Since(start)).
		Msg("grpc call")
	return resp, err
}

// --- Calculator Service ---

// Evaluate evaluates {"formula": string, "variables": {name: value}} and
// returns {"value": number}.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	src, ok := fields["formula"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "formula is required")
	}

	vars := formula.Values(fields["variables"].GetStructValue().AsMap())
	v, err := formula.Evaluate(src.StringValue, vars)
	if err != nil {
		return nil, formulaStatus(err).Err()
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"value": structpb.NewNumberValue(v),
	}}, nil
}

// SolveTemplate solves {"templateId": string} and returns the finished
// operation. A failed solve is a done operation carrying an error.
func (s *Server) SolveTemplate(ctx context.Context, req *structpb.Struct) (*longrunningpb.Operation, error) {
	id := req.GetFields()["templateId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "templateId is required")
	}

	sol, err := s.store.SolveTemplate(id)
	if err != nil {
		return nil, storeStatus(err)
	}
	if sol.Error != nil {
		log.Warn().Str("solution", sol.Name).Str("error", sol.Error.Payload).Msg("solve failed")
	}
	return solutionOperation(sol)
}

// --- Operations Service ---

// GetOperation returns the operation of a solution. Operation names are
// solution names: templates/{template}/solutions/{solution}.
func (s *Server) GetOperation(ctx context.Context, req *longrunningpb.GetOperationRequest) (*longrunningpb.Operation, error) {
	parts := strings.Split(req.GetName(), "/")
	if len(parts) != 4 || parts[0] != "templates" || parts[2] != "solutions" {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", req.GetName())
	}
	sol, err := s.store.GetSolution(parts[1], parts[3])
	if err != nil {
		return nil, storeStatus(err)
	}
	return solutionOperation(sol)
}

// --- Internal helpers ---

func storeStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrNotActive):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// formulaStatus maps a formula error to a status carrying its kind and,
// for syntax errors, its position.
func formulaStatus(err error) *status.Status {
	return errorStatus(store.NewSolutionError(err))
}

// solutionOperation wraps a solution in a done operation. The metadata is
// the solution's start time.
func solutionOperation(sol *store.Solution) (*longrunningpb.Operation, error) {
	meta, err := anypb.New(timestamppb.New(sol.StartTime))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal operation metadata: %v", err)
	}
	op := &longrunningpb.Operation{
		Name:     sol.Name,
		Metadata: meta,
		Done:     sol.State != store.SolutionActive,
	}

	switch sol.State {
	case store.SolutionSucceeded:
		body, err := solutionToStruct(sol)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to encode solution: %v", err)
		}
		resp, err := anypb.New(body)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to marshal operation result: %v", err)
		}
		op.Result = &longrunningpb.Operation_Response{Response: resp}
	case store.SolutionFailed:
		op.Result = &longrunningpb.Operation_Error{Error: errorStatus(sol.Error).Proto()}
	}
	return op, nil
}

func errorStatus(se *store.SolutionError) *status.Status {
	var code codes.Code
	switch se.Kind {
	case "syntax":
		code = codes.InvalidArgument
	case "runtime":
		code = codes.FailedPrecondition
	default:
		return status.New(codes.Internal, se.Payload)
	}
	st := status.New(code, se.Payload)

	detail := map[string]interface{}{"kind": se.Kind}
	if se.Alias != "" {
		detail["alias"] = se.Alias
		detail["formula"] = se.Formula
	}
	if se.Kind == "syntax" {
		detail["line"] = se.Line
		detail["column"] = se.Column
	}
	pb, err := structpb.NewStruct(detail)
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(pb); err == nil {
		return withDetail
	}
	return st
}

func solutionToStruct(sol *store.Solution) (*structpb.Struct, error) {
	symbols := make([]interface{}, 0)
	if sol.Symbols != nil {
		for _, sym := range sol.Symbols.Symbols() {
			symbols = append(symbols, map[string]interface{}{
				"alias": sym.Alias,
				"value": sym.Value,
			})
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"name":               sol.Name,
		"id":                 sol.ID,
		"templateId":         sol.TemplateID,
		"state":              string(sol.State),
		"templateRevisionId": sol.TemplateRevisionID,
		"symbols":            symbols,
	})
}
