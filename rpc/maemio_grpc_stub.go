// Package rpc is the demo gRPC front-end's wire layer: hand-written
// request/response types plus a manually registered grpc.ServiceDesc,
// following the same no-protoc-toolchain shape as tinySQL's
// cmd/server/main.go (a JSON grpc.Codec registered in place of a
// generated protobuf one). It sits outside the transactional core: the
// core package never imports net or google.golang.org/grpc, only this
// package and cmd/maemioserver do.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/maemio/maemio"
	"github.com/maemio/maemio/internal/index"
	"github.com/maemio/maemio/internal/record"
)

// JSONCodec implements grpc/encoding.Codec by delegating to
// encoding/json, exactly like tinySQL's server-side jsonCodec. This
// lets the demo run without a protoc toolchain while still exercising
// google.golang.org/grpc's transport and service-dispatch machinery.
type JSONCodec struct{}

func (JSONCodec) Name() string                          { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)          { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error     { return json.Unmarshal(data, v) }

// GetRequest/GetResponse mirror maemio.proto's Get RPC.
type GetRequest struct {
	RecordID uint64 `json:"record_id"`
	WorkerID int    `json:"worker_id"`
}

type GetResponse struct {
	Payload []byte `json:"payload"`
	Found   bool   `json:"found"`
}

// PutRequest/PutResponse mirror maemio.proto's Put RPC.
type PutRequest struct {
	RecordID uint64 `json:"record_id"` // 0 means "create"
	Payload  []byte `json:"payload"`
	WorkerID int    `json:"worker_id"`
}

type PutResponse struct {
	RecordID uint64 `json:"record_id"`
}

// DeleteRequest/DeleteResponse mirror maemio.proto's Delete RPC.
type DeleteRequest struct {
	RecordID uint64 `json:"record_id"`
	WorkerID int    `json:"worker_id"`
}

type DeleteResponse struct{}

// IndexKind mirrors maemio.proto's IndexKind enum.
type IndexKind int32

const (
	IndexKindBTree IndexKind = 0
	IndexKindHash  IndexKind = 1
)

// CreateIndexRequest/CreateIndexResponse mirror maemio.proto's
// CreateIndex RPC.
type CreateIndexRequest struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Kind IndexKind `json:"kind"`
}

type CreateIndexResponse struct {
	ID string `json:"id"`
}

// StatsRequest/StatsResponse mirror maemio.proto's Stats RPC.
type StatsRequest struct{}

type StatsResponse struct {
	Committed         uint64    `json:"committed"`
	Aborted           uint64    `json:"aborted"`
	RetryExhausted    uint64    `json:"retry_exhausted"`
	GCReclaimed       uint64    `json:"gc_reclaimed"`
	BackoffMeanMicros []float64 `json:"backoff_mean_micros"`
}

// MaemioService is the server-side interface grpc.ServiceDesc dispatches
// onto, matching maemio.proto's MaemioService.
type MaemioService interface {
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Put(context.Context, *PutRequest) (*PutResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	CreateIndex(context.Context, *CreateIndexRequest) (*CreateIndexResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
}

// RegisterMaemioServiceServer registers srv's RPCs on s, the same
// manual-ServiceDesc approach tinySQL's cmd/server/main.go uses in place
// of protoc-generated registration code.
func RegisterMaemioServiceServer(s *grpc.Server, srv MaemioService) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "maemio.rpc.MaemioService",
		HandlerType: (*MaemioService)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Get", Handler: getHandler},
			{MethodName: "Put", Handler: putHandler},
			{MethodName: "Delete", Handler: deleteHandler},
			{MethodName: "CreateIndex", Handler: createIndexHandler},
			{MethodName: "Stats", Handler: statsHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "maemio.proto",
	}, srv)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaemioService).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/maemio.rpc.MaemioService/Get"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(MaemioService).Get(ctx, req.(*GetRequest)) }
	return interceptor(ctx, in, info, handler)
}

func putHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaemioService).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/maemio.rpc.MaemioService/Put"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(MaemioService).Put(ctx, req.(*PutRequest)) }
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaemioService).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/maemio.rpc.MaemioService/Delete"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(MaemioService).Delete(ctx, req.(*DeleteRequest)) }
	return interceptor(ctx, in, info, handler)
}

func createIndexHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateIndexRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaemioService).CreateIndex(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/maemio.rpc.MaemioService/CreateIndex"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MaemioService).CreateIndex(ctx, req.(*CreateIndexRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaemioService).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/maemio.rpc.MaemioService/Stats"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(MaemioService).Stats(ctx, req.(*StatsRequest)) }
	return interceptor(ctx, in, info, handler)
}

// Server adapts a *maemio.Engine to MaemioService. Get, Put and Delete
// are each a single Engine.Execute call; CreateIndex and Stats call
// Engine.CreateIndex and Engine.Stats — the wire layer never sees a version chain, a
// clock, or a transaction context directly, only the Caller API.
type Server struct {
	Engine *maemio.Engine
}

func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	resp := &GetResponse{}
	err := s.Engine.Execute(ctx, req.WorkerID, func(tx *maemio.Tx) error {
		payload, err := tx.Read(record.ID(req.RecordID))
		if err != nil {
			if err == maemio.ErrNotFound {
				return nil
			}
			return err
		}
		resp.Payload = payload
		resp.Found = true
		return nil
	})
	return resp, err
}

func (s *Server) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	resp := &PutResponse{RecordID: req.RecordID}
	err := s.Engine.Execute(ctx, req.WorkerID, func(tx *maemio.Tx) error {
		if req.RecordID == 0 {
			id, err := tx.Create(req.Payload)
			if err != nil {
				return err
			}
			resp.RecordID = uint64(id)
			return nil
		}
		return tx.Write(record.ID(req.RecordID), req.Payload)
	})
	return resp, err
}

func (s *Server) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	err := s.Engine.Execute(ctx, req.WorkerID, func(tx *maemio.Tx) error {
		return tx.Delete(record.ID(req.RecordID))
	})
	return &DeleteResponse{}, err
}

func (s *Server) CreateIndex(ctx context.Context, req *CreateIndexRequest) (*CreateIndexResponse, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		id = uuid.New()
	}
	kind := index.KindBTree
	if req.Kind == IndexKindHash {
		kind = index.KindHash
	}
	if _, err := s.Engine.CreateIndex(id, req.Name, kind); err != nil {
		return nil, fmt.Errorf("rpc: create index %q: %w", req.Name, err)
	}
	return &CreateIndexResponse{ID: id.String()}, nil
}

func (s *Server) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	st := s.Engine.Stats()
	return &StatsResponse{
		Committed:         st.Committed,
		Aborted:           st.Aborted,
		RetryExhausted:    st.RetryExhausted,
		GCReclaimed:       st.GCReclaimed,
		BackoffMeanMicros: st.BackoffMeanMicros,
	}, nil
}
