package flight

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/logging"
	"github.com/23skdu/qemistree/internal/storage"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func testDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	ids := make([]string, n)
	rows := make([]canon.Row, n)
	probs := make([][]float64, n)
	ab := make([][]float64, n)
	md := make([][]string, n)
	for i := 0; i < n; i++ {
		rows[i] = canon.NewRow(2, i%2)
		ids[i] = canon.Label(rows[i]) + "_" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		probs[i] = rows[i].Floats()
		ab[i] = []float64{float64(i)}
		md[i] = []string{"f"}
	}
	fps, err := canon.NewMatrix(ids, []string{"1", "2"}, rows)
	require.NoError(t, err)
	pm, err := core.NewMatrix(ids, []string{"1", "2"}, probs)
	require.NoError(t, err)
	a, err := table.NewAbundance(ids, []string{"s"}, ab)
	require.NoError(t, err)
	m, err := table.NewMetadata(ids, []string{table.ColumnFeatureID}, md)
	require.NoError(t, err)
	ds, err := dataset.New(fps, pm, a, m)
	require.NoError(t, err)
	return ds
}

func setupServer(t *testing.T, ds *dataset.Dataset) flight.Client {
	t.Helper()
	srv, err := NewServer(ds, logging.DiscardLogger(), WithChunkSizes(4, 16, 2))
	require.NoError(t, err)

	lis := bufconn.Listen(bufSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, lis) }()

	client, err := flight.NewClientWithMiddleware(
		"passthrough:///bufnet",
		nil,
		nil,
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		assert.NoError(t, <-done)
		srv.Close()
	})
	return client
}

func TestServer_ListFlights(t *testing.T) {
	client := setupServer(t, testDataset(t, 5))
	stream, err := client.ListFlights(context.Background(), &flight.Criteria{})
	require.NoError(t, err)

	var names []string
	for {
		info, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, info.FlightDescriptor.Path[0])
		assert.Equal(t, int64(5), info.TotalRecords)
	}
	assert.Equal(t, []string{storage.TableAbundance, storage.TableFingerprints, storage.TableMetadata}, names)
}

func TestServer_GetFlightInfo(t *testing.T) {
	client := setupServer(t, testDataset(t, 3))
	ctx := context.Background()

	info, err := client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"metadata"}})
	require.NoError(t, err)
	assert.Equal(t, []byte("metadata"), info.Endpoint[0].Ticket.Ticket)
	schema, err := flight.DeserializeSchema(info.Schema, memory.DefaultAllocator)
	require.NoError(t, err)
	assert.Equal(t, storage.LabelField, schema.Field(0).Name)

	_, err = client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"nope"}})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_DoGet(t *testing.T) {
	ds := testDataset(t, 40)
	client := setupServer(t, ds)

	stream, err := client.DoGet(context.Background(), &flight.Ticket{Ticket: []byte(storage.TableAbundance)})
	require.NoError(t, err)
	r, err := flight.NewRecordReader(stream)
	require.NoError(t, err)
	defer r.Release()

	var labels []string
	var values []float64
	batches := 0
	for r.Next() {
		rec := r.Record()
		batches++
		l := rec.Column(0).(*array.String)
		v := rec.Column(1).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			labels = append(labels, l.Value(i))
			values = append(values, v.Value(i))
		}
	}
	require.NoError(t, r.Err())
	// 4 + 8 + 16 + 12
	assert.Equal(t, 4, batches)
	assert.Equal(t, ds.Labels(), labels)
	assert.Equal(t, 39.0, values[39])
}

func TestServer_DoGetUnknown(t *testing.T) {
	client := setupServer(t, testDataset(t, 2))
	stream, err := client.DoGet(context.Background(), &flight.Ticket{Ticket: []byte("nope")})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestNewServer_Empty(t *testing.T) {
	_, err := NewServer(nil, logging.DiscardLogger())
	assert.ErrorIs(t, err, core.ErrEmptyInput)
}
