package grpc_control

import (
	"fmt"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/serializers"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Control messages travel as google.protobuf.Struct on the default proto
// codec, so any gRPC client can call the service without our own .proto.
// The typed messages in messages.go are mapped through their JSON form.
// Requests are read strictly so a misspelled field is rejected rather than
// silently dropped; responses are read leniently.
var (
	wireSerializer    interfaces.ISerializer = serializers.NewJSONSerializer()
	requestSerializer interfaces.ISerializer = serializers.NewStrictJSONSerializer()
)

// toWire converts a typed message into its Struct form.
func toWire(v any) (*structpb.Struct, error) {
	data, err := wireSerializer.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}

	message := &structpb.Struct{}
	if err := protojson.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to build struct for %T: %w", v, err)
	}
	return message, nil
}

// fromWire fills the typed message v from its Struct form.
func fromWire(message *structpb.Struct, v any) error {
	return decodeWire(wireSerializer, message, v)
}

// requestFromWire is fromWire that rejects unknown fields.
func requestFromWire(message *structpb.Struct, v any) error {
	return decodeWire(requestSerializer, message, v)
}

func decodeWire(serializer interfaces.ISerializer, message *structpb.Struct, v any) error {
	data, err := protojson.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to read struct: %w", err)
	}
	if err := serializer.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}
