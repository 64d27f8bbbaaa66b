package engine

/*
Файл grpc_server.go - gRPC вход шлюза: тот же конвейер, что и HTTP.

Сервис roby.v1.Ledger описан вручную через grpc.ServiceDesc, сообщения -
well-known типы protobuf: транзакция приходит как BytesValue (CBOR),
результат возвращается как Struct.
*/

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/xela07ax/roby-guard/internal/domain"
)

const (
	ledgerServiceName    = "roby.v1.Ledger"
	ledgerSubmitMethod   = "/roby.v1.Ledger/Submit"
	ledgerSimulateMethod = "/roby.v1.Ledger/Simulate"
)

// LedgerServer — контракт gRPC сервиса.
type LedgerServer interface {
	Submit(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
	Simulate(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// Submitter: то, что нужно транспортам от шлюза.
type Submitter interface {
	Submit(ctx context.Context, tx *Transaction) (*Result, error)
	Simulate(ctx context.Context, tx *Transaction) (*Result, error)
}

type GRPCGatewayServer struct {
	gw Submitter
}

func NewGRPCGatewayServer(gw Submitter) *GRPCGatewayServer {
	return &GRPCGatewayServer{gw: gw}
}

func (s *GRPCGatewayServer) Submit(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return s.run(ctx, req, s.gw.Submit)
}

func (s *GRPCGatewayServer) Simulate(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return s.run(ctx, req, s.gw.Simulate)
}

func (s *GRPCGatewayServer) run(
	ctx context.Context,
	req *wrapperspb.BytesValue,
	call func(context.Context, *Transaction) (*Result, error),
) (*structpb.Struct, error) {
	tx, err := DecodeTransaction(req.GetValue())
	if err != nil {
		return nil, StatusFromError(err)
	}
	res, err := call(ctx, tx)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return resultStruct(res)
}

func resultStruct(res *Result) (*structpb.Struct, error) {
	written := make([]any, len(res.Written))
	for i, k := range res.Written {
		written[i] = k.String()
	}
	st, err := structpb.NewStruct(map[string]any{
		"id":             res.ID,
		"trace_id":       res.TraceID,
		"instruction":    res.Instruction,
		"robot":          res.Robot.String(),
		"written":        written,
		"command_logged": res.CommandLogged,
		"simulated":      res.Simulated,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return st, nil
}

// StatusFromError переводит ошибку шлюза в gRPC статус.
// Код ошибки программы передается в тексте: "program error <code>: <message>".
func StatusFromError(err error) error {
	var pe *domain.ProgramError
	if errors.As(err, &pe) && Classify(err) != KindMalformed {
		return status.Errorf(codes.FailedPrecondition, "program error %d: %s", pe.Code, pe.Message)
	}
	switch Classify(err) {
	case KindMalformed, KindReadOnly:
		return status.Error(codes.InvalidArgument, err.Error())
	case KindSignature:
		return status.Error(codes.Unauthenticated, err.Error())
	case KindExpired, KindConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case KindUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	case KindTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: ledgerSubmitHandler},
		{MethodName: "Simulate", Handler: ledgerSimulateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "roby/v1/ledger.proto",
}

func ledgerSubmitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ledgerSubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Submit(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func ledgerSimulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Simulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ledgerSimulateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Simulate(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerClient: клиент сервиса для robyctl и тестов.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) Submit(ctx context.Context, raw []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ledgerSubmitMethod, wrapperspb.Bytes(raw), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) Simulate(ctx context.Context, raw []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ledgerSimulateMethod, wrapperspb.Bytes(raw), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
