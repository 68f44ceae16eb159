package report

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-padcheck/internal/harness"
	"github.com/23skdu/longbow-padcheck/internal/logger"
)

// DescriptorPath is the Flight path results are put under.
var DescriptorPath = []string{"padcheck", "layout"}

// FlightPublisher sends each result to an Arrow Flight server with DoPut.
type FlightPublisher struct {
	addr string
	mem  memory.Allocator
	log  *logger.Logger
}

func NewFlightPublisher(addr string) (*FlightPublisher, error) {
	if addr == "" {
		return nil, errors.New("flight address is empty")
	}
	return &FlightPublisher{
		addr: addr,
		mem:  memory.NewGoAllocator(),
		log:  logger.Log.With("report"),
	}, nil
}

// WithAllocator swaps the allocator used for records.
func (fp *FlightPublisher) WithAllocator(mem memory.Allocator) *FlightPublisher {
	fp.mem = mem
	return fp
}

func (fp *FlightPublisher) Publish(ctx context.Context, res *harness.Result) error {
	client, err := flight.NewClientWithMiddleware(fp.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	defer client.Close()

	stream, err := client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	rec := NewRecord(fp.mem, res)
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(fp.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: DescriptorPath,
	})
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send: %w", err)
	}

	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("DoPut rejected: %w", err)
		}
	}

	fp.log.Info("published result", "addr", fp.addr, "rows", rec.NumRows(), "backend", res.Backend)
	return nil
}
