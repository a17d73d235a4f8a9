package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const requestIDKey = "x-request-id"

// Services bundles what the gRPC transport calls into.
type Services struct {
	Ingest       domain.IngestService
	Measurements domain.MeasurementService
}

// NewServer constructs a gRPC server exposing hemrs.TelemetryService. A nil
// registerer falls back to prometheus.DefaultRegisterer.
func NewServer(services Services, logger *infra.Logger, registerer prometheus.Registerer) (*grpc.Server, error) {
	metrics, err := serverMetrics(registerer)
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		metrics.UnaryServerInterceptor(),
	))
	RegisterTelemetryServiceServer(server, &telemetryServer{
		ingest:       services.Ingest,
		measurements: services.Measurements,
	})
	metrics.InitializeMetrics(server)
	return server, nil
}

func serverMetrics(registerer prometheus.Registerer) (*grpc_prometheus.ServerMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := grpc_prometheus.NewServerMetrics()
	if err := registerer.Register(metrics); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*grpc_prometheus.ServerMetrics); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register grpc metrics: %w", err)
	}
	return metrics, nil
}

type telemetryServer struct {
	ingest       domain.IngestService
	measurements domain.MeasurementService
}

// Ingest admits a single measurement ({device, sensor, measurement}) or a
// batch ({items: [...]}).
func (s *telemetryServer) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ingestRequest(in)
	if err != nil {
		return nil, translateServiceError(err)
	}
	admission, err := s.ingest.Enqueue(ctx, req)
	if err != nil {
		return nil, translateServiceError(err)
	}
	return toStruct(admission)
}

func (s *telemetryServer) Persist(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ingestRequest(in)
	if err != nil {
		return nil, translateServiceError(err)
	}
	persisted, err := s.ingest.Persist(ctx, req)
	if err != nil {
		return nil, translateServiceError(err)
	}
	return toStruct(map[string]any{
		"persisted":    persisted.Count(),
		"measurements": persisted.Measurements,
	})
}

func (s *telemetryServer) LatestMeasurement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	key, err := measurementKey(in)
	if err != nil {
		return nil, translateServiceError(err)
	}
	m, err := s.measurements.LatestByDeviceSensor(ctx, key)
	if err != nil {
		return nil, translateServiceError(err)
	}
	return toStruct(m)
}

func (s *telemetryServer) Stats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	key, err := measurementKey(in)
	if err != nil {
		return nil, translateServiceError(err)
	}
	stats, err := s.measurements.Stats(ctx, key)
	if err != nil {
		return nil, translateServiceError(err)
	}
	return toStruct(stats)
}

// ingestRequest reuses the JSON decoding of domain.IngestRequest so both
// transports accept the same shapes.
func ingestRequest(in *structpb.Struct) (domain.IngestRequest, error) {
	var req domain.IngestRequest
	if in == nil {
		return req, fmt.Errorf("%w: request must not be nil", domain.ErrInvalidInput)
	}

	var payload any = in.AsMap()
	if items, ok := in.GetFields()["items"]; ok {
		list := items.GetListValue()
		if list == nil {
			return req, fmt.Errorf("%w: items must be a list", domain.ErrInvalidInput)
		}
		payload = list.AsSlice()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

func measurementKey(in *structpb.Struct) (domain.MeasurementKey, error) {
	fields := in.GetFields()
	deviceID, err := positiveInt(fields, "device")
	if err != nil {
		return domain.MeasurementKey{}, err
	}
	sensorID, err := positiveInt(fields, "sensor")
	if err != nil {
		return domain.MeasurementKey{}, err
	}
	return domain.MeasurementKey{DeviceID: deviceID, SensorID: sensorID}, nil
}

func positiveInt(fields map[string]*structpb.Value, name string) (int, error) {
	value, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, name)
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok || number.NumberValue <= 0 || number.NumberValue != float64(int(number.NumberValue)) {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return int(number.NumberValue), nil
}

// toStruct converts v through its JSON form, so struct tags decide field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func translateServiceError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrQueueClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

// loggingInterceptor logs every call and carries x-request-id metadata into
// the logger's correlation id.
func loggingInterceptor(logger *infra.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDKey); len(ids) > 0 && ids[0] != "" {
				ctx = infra.WithCorrelationID(ctx, ids[0])
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Warnf(ctx, "gRPC %s failed in %s: %v", info.FullMethod, duration, err)
		} else {
			logger.Debugf(ctx, "gRPC %s completed in %s", info.FullMethod, duration)
		}
		return resp, err
	}
}
