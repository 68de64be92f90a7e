package enhance

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
)

// EnhanceMethod is the full gRPC method name of the remote enhancer. Request
// and response are google.protobuf.Struct values shaped like Request and Result.
const EnhanceMethod = "/penflive.enhance.v1.Enhancer/Enhance"

// Invoker performs a unary call. *client.GRPCClient satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, method string, req, resp any) error
}

// GRPCProvider enhances through a unary gRPC call.
type GRPCProvider struct {
	conn Invoker
}

// NewGRPCProvider creates a provider over an established connection.
func NewGRPCProvider(conn Invoker) *GRPCProvider {
	return &GRPCProvider{conn: conn}
}

// Name returns the provider identifier.
func (p *GRPCProvider) Name() string {
	return "grpc"
}

// Enhance sends one request and converts the response.
func (p *GRPCProvider) Enhance(ctx context.Context, req *Request) (*Result, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, plerrors.NewEnhanceError(plerrors.ErrInternal, p.Name(), fmt.Sprintf("encode request: %v", err), err)
	}

	out := &structpb.Struct{}
	if err := p.conn.Invoke(ctx, EnhanceMethod, in, out); err != nil {
		return nil, classifyStatus(p.Name(), err)
	}

	data, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, plerrors.NewEnhanceError(plerrors.ErrParseError, p.Name(), fmt.Sprintf("decode response: %v", err), err)
	}
	return decodeResult(p.Name(), req, data)
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func classifyStatus(provider string, err error) *plerrors.EnhanceError {
	st, ok := status.FromError(err)
	if !ok {
		return plerrors.ClassifyError(err, provider)
	}

	code := plerrors.ErrInternal
	switch st.Code() {
	case codes.DeadlineExceeded:
		code = plerrors.ErrTimeout
	case codes.Canceled:
		code = plerrors.ErrCanceled
	case codes.ResourceExhausted:
		code = plerrors.ErrRateLimit
	case codes.Unavailable:
		code = plerrors.ErrUnavailable
	case codes.InvalidArgument, codes.FailedPrecondition, codes.Unauthenticated,
		codes.PermissionDenied, codes.NotFound, codes.Unimplemented:
		code = plerrors.ErrBadStatus
	}
	return plerrors.NewEnhanceError(code, provider, fmt.Sprintf("%s: %s", st.Code(), st.Message()), err)
}
