// Package flight serves the tables of a merged dataset over Arrow Flight.
package flight

import (
	"context"
	"errors"
	"net"
	"sort"
	"time"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/storage"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server exposes the fingerprints, abundance and metadata records of one
// dataset. Tickets and descriptor paths are table names.
type Server struct {
	flight.BaseFlightServer

	logger  zerolog.Logger
	mem     memory.Allocator
	records map[string]arrow.Record
	names   []string

	minChunk, maxChunk int
	growth             float64

	grpcOpts []grpc.ServerOption
}

// Option configures a Server.
type Option func(*Server)

// WithChunkSizes overrides the DoGet chunk bounds.
func WithChunkSizes(minRows, maxRows int, growth float64) Option {
	return func(s *Server) {
		s.minChunk, s.maxChunk, s.growth = minRows, maxRows, growth
	}
}

// WithAllocator sets the Arrow allocator.
func WithAllocator(mem memory.Allocator) Option {
	return func(s *Server) { s.mem = mem }
}

// WithGRPCOptions passes options to the underlying gRPC server.
func WithGRPCOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) { s.grpcOpts = append(s.grpcOpts, opts...) }
}

// NewServer builds the Arrow records of ds. Close releases them.
func NewServer(ds *dataset.Dataset, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, core.NewEmptyInputError("flight", "no dataset to serve")
	}
	s := &Server{
		logger:   logger,
		mem:      memory.NewGoAllocator(),
		minChunk: DefaultMinChunkRows,
		maxChunk: DefaultMaxChunkRows,
		growth:   DefaultChunkGrowth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = storage.Records(s.mem, ds)
	for name := range s.records {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s, nil
}

// Close releases the served records.
func (s *Server) Close() {
	for _, r := range s.records {
		r.Release()
	}
	s.records = nil
}

func (s *Server) info(name string) *flight.FlightInfo {
	rec := s.records[name]
	return &flight.FlightInfo{
		Schema: flight.SerializeSchema(rec.Schema(), s.mem),
		FlightDescriptor: &flight.FlightDescriptor{
			Type: flight.DescriptorPATH,
			Path: []string{name},
		},
		Endpoint: []*flight.FlightEndpoint{{
			Ticket: &flight.Ticket{Ticket: []byte(name)},
		}},
		TotalRecords: rec.NumRows(),
		TotalBytes:   -1,
	}
}

func (s *Server) lookup(name string) (arrow.Record, error) {
	rec, ok := s.records[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown table %q", name)
	}
	return rec, nil
}

// ListFlights lists one flight per table.
func (s *Server) ListFlights(c *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	for _, name := range s.names {
		if err := stream.Send(s.info(name)); err != nil {
			observe("ListFlights", err)
			return err
		}
	}
	observe("ListFlights", nil)
	return nil
}

// GetFlightInfo describes the table named by desc.Path[0].
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	if desc == nil || len(desc.Path) == 0 {
		err := status.Error(codes.InvalidArgument, "Empty path")
		observe("GetFlightInfo", err)
		return nil, err
	}
	if _, err := s.lookup(desc.Path[0]); err != nil {
		observe("GetFlightInfo", err)
		return nil, err
	}
	observe("GetFlightInfo", nil)
	return s.info(desc.Path[0]), nil
}

// GetSchema returns the schema of the table named by desc.Path[0].
func (s *Server) GetSchema(ctx context.Context, desc *flight.FlightDescriptor) (*flight.SchemaResult, error) {
	if desc == nil || len(desc.Path) == 0 {
		return nil, status.Error(codes.InvalidArgument, "Empty path")
	}
	rec, err := s.lookup(desc.Path[0])
	if err != nil {
		return nil, err
	}
	return &flight.SchemaResult{Schema: flight.SerializeSchema(rec.Schema(), s.mem)}, nil
}

// DoGet streams one table in adaptively sized slices.
func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	name := string(tkt.GetTicket())
	rec, err := s.lookup(name)
	if err != nil {
		observe("DoGet", err)
		return err
	}
	start := time.Now()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.mem))
	defer func() { _ = w.Close() }()

	ctx := stream.Context()
	strategy := NewAdaptiveChunkStrategy(s.minChunk, s.maxChunk, s.growth)
	sent := int64(0)
	for _, c := range Chunks(int(rec.NumRows()), strategy) {
		if err := ctx.Err(); err != nil {
			err = status.FromContextError(err).Err()
			observe("DoGet", err)
			return err
		}
		slice := rec.NewSlice(int64(c[0]), int64(c[1]))
		err := w.Write(slice)
		slice.Release()
		if err != nil {
			observe("DoGet", err)
			return err
		}
		sent += int64(c[1] - c[0])
	}

	metrics.FlightRowsSent.WithLabelValues(name).Add(float64(sent))
	observe("DoGet", nil)
	s.logger.Debug().
		Str("table", name).
		Int64("rows", sent).
		Dur("elapsed", time.Since(start)).
		Msg("DoGet complete")
	return nil
}

// Serve listens on addr until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer(s.grpcOpts...)
	flight.RegisterFlightServiceServer(gs, s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(lis)
	}()
	s.logger.Info().Str("addr", lis.Addr().String()).Strs("tables", s.names).Msg("Flight server listening")

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		<-errCh
		s.logger.Info().Msg("Flight server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func observe(method string, err error) {
	code := codes.OK
	if err != nil {
		code = status.Code(err)
	}
	metrics.FlightOperationsTotal.WithLabelValues(method, code.String()).Inc()
}
