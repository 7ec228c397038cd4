package webmonitor

import (
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/reefwatch/pkg/types"
)

const protobufContentType = "application/x-protobuf"

// wantsProtobuf reports whether the Accept header prefers protobuf.
func wantsProtobuf(accept string) bool {
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, protobufContentType)
}

func detectionsToList(dets []types.Detection) []any {
	out := make([]any, len(dets))
	for i, d := range dets {
		out[i] = map[string]any{
			"class_name": d.ClassName,
			"confidence": d.Confidence,
			"box":        []any{d.Box[0], d.Box[1], d.Box[2], d.Box[3]},
		}
	}
	return out
}

// marshalResultProto encodes the poller payload as a google.protobuf.Struct.
func marshalResultProto(res DetectionResult) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"ready":          res.Ready,
		"version":        res.Version,
		"frame_number":   res.FrameNumber,
		"timestamp":      res.Timestamp,
		"num_detections": res.NumDetections,
		"detections":     detectionsToList(res.Detections),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// marshalEventProto encodes a detection event as a google.protobuf.Struct.
func marshalEventProto(ev DetectionEvent) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"version":      ev.Version,
		"frame_number": ev.FrameNumber,
		"timestamp":    ev.Timestamp,
		"detections":   detectionsToList(ev.Detections),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}
