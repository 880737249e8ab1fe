package oracle

import (
	"context"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "runvalidator.PassageValidator"

	// ValidatePassagesMethod is the full method path of the single RPC.
	ValidatePassagesMethod = "/" + ServiceName + "/ValidatePassages"

	// CodecName is the gRPC content-subtype used on the wire
	// (application/grpc+json).
	CodecName = "json"
)

// ValidationRequest carries the identifiers to check. Callers deduplicate.
type ValidationRequest struct {
	PassageIDs []string `json:"passage_ids"`
}

// PassageValidation is the result for one identifier.
type PassageValidation struct {
	IsValid bool `json:"is_valid"`
}

// ValidationResult holds one PassageValidation per requested id, in request
// order.
type ValidationResult struct {
	PassageValidations []PassageValidation `json:"passage_validations"`
}

// PassageValidatorServer is implemented by Service.
type PassageValidatorServer interface {
	ValidatePassages(ctx context.Context, req *ValidationRequest) (*ValidationResult, error)
}

// ServiceDesc describes the existence-check service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PassageValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ValidatePassages",
			Handler:    validatePassagesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "passage_validator.proto",
}

func validatePassagesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ValidationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PassageValidatorServer).ValidatePassages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ValidatePassagesMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PassageValidatorServer).ValidatePassages(ctx, req.(*ValidationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// jsonCodec encodes messages as JSON so the protocol needs no generated
// protobuf code.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) (mem.BufferSlice, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mem.BufferSlice{mem.SliceBuffer(data)}, nil
}

func (jsonCodec) Unmarshal(data mem.BufferSlice, v any) error {
	return sonic.Unmarshal(data.Materialize(), v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodecV2(jsonCodec{})
}
