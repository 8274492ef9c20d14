package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
)

// CalculatorServiceName is the fully qualified Calculator service name.
const CalculatorServiceName = "calcengine.v1.Calculator"

// CalculatorServer is the server API for the Calculator service.
type CalculatorServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SolveTemplate(context.Context, *structpb.Struct) (*longrunningpb.Operation, error)
}

// RegisterCalculatorServer registers srv with s.
func RegisterCalculatorServer(s grpc.ServiceRegistrar, srv CalculatorServer) {
	s.RegisterService(&calculatorServiceDesc, srv)
}

var calculatorServiceDesc = grpc.ServiceDesc{
	ServiceName: CalculatorServiceName,
	HandlerType: (*CalculatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "SolveTemplate", Handler: solveTemplateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "calcengine/v1/calculator.proto",
}

func evaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + CalculatorServiceName + "/Evaluate",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CalculatorServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func solveTemplateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).SolveTemplate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + CalculatorServiceName + "/SolveTemplate",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CalculatorServer).SolveTemplate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CalculatorClient calls the Calculator service.
type CalculatorClient struct {
	cc grpc.ClientConnInterface
}

// NewCalculatorClient returns a client using cc.
func NewCalculatorClient(cc grpc.ClientConnInterface) *CalculatorClient {
	return &CalculatorClient{cc: cc}
}

// Evaluate calls Calculator.Evaluate.
func (c *CalculatorClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+CalculatorServiceName+"/Evaluate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SolveTemplate calls Calculator.SolveTemplate.
func (c *CalculatorClient) SolveTemplate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*longrunningpb.Operation, error) {
	out := new(longrunningpb.Operation)
	if err := c.cc.Invoke(ctx, "/"+CalculatorServiceName+"/SolveTemplate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateFormula is a convenience wrapper around Evaluate.
func (c *CalculatorClient) EvaluateFormula(ctx context.Context, src string, vars map[string]interface{}, opts ...grpc.CallOption) (float64, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"formula":   src,
		"variables": vars,
	})
	if err != nil {
		return 0, err
	}
	resp, err := c.Evaluate(ctx, req, opts...)
	if err != nil {
		return 0, err
	}
	return resp.GetFields()["value"].GetNumberValue(), nil
}
