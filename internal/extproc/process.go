package extproc

import (
	"fmt"
	"io"
	"strings"
	"time"

	core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	ext_procv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/ext_proc/v3"
	pb "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	type_v3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/monitoring"
	"github.com/guided-traffic/body-consumer/internal/proxy/response"
)

// Stream results reported to metrics besides consumption codes
const (
	resultPassthrough = "passthrough"
	resultResolved    = "resolved"
	resultAbandoned   = "abandoned"
)

// exchange is the consumption state of one ext_proc stream
type exchange struct {
	kind    body.Kind
	body    *body.Body
	sink    *body.Sink
	started time.Time
	settled bool
	outcome string
}

// Process implements ext_proc_v3.ExternalProcessorServer
func (s *Server) Process(stream pb.ExternalProcessor_ProcessServer) error {
	ctx := stream.Context()
	var ex *exchange
	result := resultPassthrough

	defer func() {
		switch {
		case ex == nil:
		case ex.settled:
			result = ex.outcome
		default:
			result = resultAbandoned
		}
		monitoring.RecordExtProcStream(result)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return status.Errorf(codes.Unknown, "cannot receive stream request: %v", err)
		}

		var resp *pb.ProcessingResponse
		switch value := req.Request.(type) {
		case *pb.ProcessingRequest_RequestHeaders:
			resp, ex = s.onRequestHeaders(value.RequestHeaders)
		case *pb.ProcessingRequest_RequestBody:
			resp = s.onRequestBody(ex, value.RequestBody)
		case *pb.ProcessingRequest_RequestTrailers:
			resp = &pb.ProcessingResponse{
				Response: &pb.ProcessingResponse_RequestTrailers{RequestTrailers: &pb.TrailersResponse{}},
			}
		case *pb.ProcessingRequest_ResponseHeaders:
			resp = &pb.ProcessingResponse{
				Response: &pb.ProcessingResponse_ResponseHeaders{ResponseHeaders: &pb.HeadersResponse{}},
			}
		case *pb.ProcessingRequest_ResponseBody:
			resp = &pb.ProcessingResponse{
				Response: &pb.ProcessingResponse_ResponseBody{ResponseBody: &pb.BodyResponse{}},
			}
		case *pb.ProcessingRequest_ResponseTrailers:
			resp = &pb.ProcessingResponse{
				Response: &pb.ProcessingResponse_ResponseTrailers{ResponseTrailers: &pb.TrailersResponse{}},
			}
		default:
			s.logger.Debugf("Unknown request type %T", value)
			continue
		}

		if err := stream.Send(resp); err != nil {
			s.logger.WithError(err).Debug("Failed to send ext_proc response")
			return err
		}
	}
}

// onRequestHeaders starts a consumption when the request names a kind
func (s *Server) onRequestHeaders(headers *pb.HttpHeaders) (*pb.ProcessingResponse, *exchange) {
	values := headerValues(headers.GetHeaders())

	rawKind := values[strings.ToLower(s.config.KindHeader)]
	if rawKind == "" {
		return headersResponse(nil), nil
	}

	kind, err := body.ParseKind(rawKind)
	if err != nil {
		s.logger.WithField("kind", rawKind).Warn("Request names an unknown body kind")
		if s.config.RejectOnError {
			return immediateResponse(400, response.CodeUnknownKind), nil
		}
		return headersResponse(resultHeader(response.CodeUnknownKind)), nil
	}

	b := body.NewBody(s.consumer, values["content-type"])
	b.SetLimit(s.config.MaxBodyBytes)
	ex := &exchange{
		kind:    kind,
		body:    b,
		sink:    b.Consume(kind),
		started: time.Now(),
	}

	s.logger.WithFields(logrus.Fields{
		"kind":   kind.String(),
		"method": values[":method"],
		"path":   values[":path"],
	}).Debug("Consuming request body")

	// Requests without a body complete immediately
	if headers.GetEndOfStream() {
		if err := b.Finish(); err != nil {
			s.logger.WithError(err).Error("Failed to complete empty body")
		}
		mutation, metadata, immediate := s.settle(ex, nil)
		if immediate != nil {
			return immediate, ex
		}
		resp := headersResponse(mutation)
		resp.DynamicMetadata = metadata
		return resp, ex
	}

	resp := headersResponse(nil)
	resp.ModeOverride = &ext_procv3.ProcessingMode{
		RequestBodyMode: ext_procv3.ProcessingMode_BUFFERED,
	}
	return resp, ex
}

// onRequestBody appends a body chunk and settles on end of stream
func (s *Server) onRequestBody(ex *exchange, chunk *pb.HttpBody) *pb.ProcessingResponse {
	if ex == nil || ex.settled {
		return bodyResponse(nil)
	}

	if _, err := ex.body.Write(chunk.GetBody()); err != nil {
		mutation, metadata, immediate := s.settle(ex, err)
		if immediate != nil {
			return immediate
		}
		resp := bodyResponse(mutation)
		resp.DynamicMetadata = metadata
		return resp
	}

	if !chunk.GetEndOfStream() {
		return bodyResponse(nil)
	}

	if err := ex.body.Finish(); err != nil {
		s.logger.WithError(err).Error("Failed to complete body")
	}
	mutation, metadata, immediate := s.settle(ex, nil)
	if immediate != nil {
		return immediate
	}
	resp := bodyResponse(mutation)
	resp.DynamicMetadata = metadata
	return resp
}

// settle reports the exchange outcome. transferErr is set when the body
// could not be received and the consumption will never settle.
func (s *Server) settle(ex *exchange, transferErr error) (*pb.HeaderMutation, *structpb.Struct, *pb.ProcessingResponse) {
	var (
		data body.Data
		err  = transferErr
	)
	if err == nil {
		data, err = ex.sink.Result()
		if ex.sink.State() == body.StatePending {
			err = fmt.Errorf("consumption did not settle")
		}
	}

	code := resultResolved
	if err != nil {
		_, code = response.StatusFor(err)
	}
	ex.settled = true
	ex.outcome = code

	fields := map[string]*structpb.Value{
		"kind":        structpb.NewStringValue(ex.kind.String()),
		"outcome":     structpb.NewStringValue(code),
		"duration_ms": structpb.NewNumberValue(float64(time.Since(ex.started).Microseconds()) / 1000),
	}
	if err != nil {
		fields["error"] = structpb.NewStringValue(err.Error())
	} else {
		fields["result"] = describe(data)
	}
	metadata := &structpb.Struct{Fields: map[string]*structpb.Value{
		MetadataNamespace: structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}

	entry := s.logger.WithFields(logrus.Fields{
		"kind":    ex.kind.String(),
		"outcome": code,
	})
	if err != nil {
		entry.WithError(err).Info("Request body rejected")
		if s.config.RejectOnError {
			statusCode, _ := response.StatusFor(err)
			resp := immediateResponse(statusCode, code)
			resp.DynamicMetadata = metadata
			return nil, nil, resp
		}
	} else {
		entry.Debug("Request body consumed")
	}

	return resultHeader(code), metadata, nil
}

// describe summarizes consumed data for dynamic metadata
func describe(data body.Data) *structpb.Value {
	switch d := data.(type) {
	case body.Text:
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"length": structpb.NewNumberValue(float64(len(d))),
		}})
	case body.JSONValue:
		if v, ok := d.Value.(*structpb.Value); ok {
			return v
		}
		return structpb.NewNullValue()
	case *body.Blob:
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"type":   structpb.NewStringValue(d.Type()),
			"size":   structpb.NewNumberValue(float64(d.Size())),
			"digest": structpb.NewStringValue(d.Digest()),
		}})
	case *body.FormData:
		fields := make(map[string]*structpb.Value)
		for _, entry := range d.Entries() {
			if _, seen := fields[entry.Name]; seen {
				continue
			}
			values := d.GetAll(entry.Name)
			list := make([]*structpb.Value, len(values))
			for i, v := range values {
				list[i] = structpb.NewStringValue(v)
			}
			fields[entry.Name] = structpb.NewListValue(&structpb.ListValue{Values: list})
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields})
	case body.ArrayBuffer:
		length := 0
		if buf, ok := d.Handle.(interface{ ByteLength() int }); ok {
			length = buf.ByteLength()
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"byteLength": structpb.NewNumberValue(float64(length)),
		}})
	default:
		return structpb.NewNullValue()
	}
}

func headerValues(headers *core_v3.HeaderMap) map[string]string {
	values := make(map[string]string)
	for _, h := range headers.GetHeaders() {
		value := string(h.GetRawValue())
		if value == "" {
			value = h.GetValue()
		}
		values[strings.ToLower(h.GetKey())] = value
	}
	return values
}

func resultHeader(code string) *pb.HeaderMutation {
	return &pb.HeaderMutation{
		SetHeaders: []*core_v3.HeaderValueOption{
			{
				Header: &core_v3.HeaderValue{
					Key:      ResultHeader,
					RawValue: []byte(code),
				},
			},
		},
	}
}

func headersResponse(mutation *pb.HeaderMutation) *pb.ProcessingResponse {
	return &pb.ProcessingResponse{
		Response: &pb.ProcessingResponse_RequestHeaders{
			RequestHeaders: &pb.HeadersResponse{
				Response: &pb.CommonResponse{HeaderMutation: mutation},
			},
		},
	}
}

func bodyResponse(mutation *pb.HeaderMutation) *pb.ProcessingResponse {
	return &pb.ProcessingResponse{
		Response: &pb.ProcessingResponse_RequestBody{
			RequestBody: &pb.BodyResponse{
				Response: &pb.CommonResponse{HeaderMutation: mutation},
			},
		},
	}
}

func immediateResponse(statusCode int, code string) *pb.ProcessingResponse {
	return &pb.ProcessingResponse{
		Response: &pb.ProcessingResponse_ImmediateResponse{
			ImmediateResponse: &pb.ImmediateResponse{
				Status:  &type_v3.HttpStatus{Code: type_v3.StatusCode(statusCode)},
				Headers: resultHeader(code),
				Details: code,
			},
		},
	}
}
