package detection

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

// ObservationsFromStruct converts a tracker response of the form
//
//	{"observations": [{"bbox": [x1, y1, x2, y2], "label": "cup", "track_id": 3, "score": 0.9}]}
//
// into observations. A missing, null or negative track_id means the tracker
// assigned no identity. The result is validated as one frame.
func ObservationsFromStruct(resp *structpb.Struct) ([]models.Observation, error) {
	if resp == nil {
		return nil, nil
	}
	field, ok := resp.GetFields()["observations"]
	if !ok {
		return nil, nil
	}
	list := field.GetListValue()
	if list == nil {
		if _, isNull := field.GetKind().(*structpb.Value_NullValue); isNull {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: observations is not a list", models.ErrInvalidObservation)
	}

	out := make([]models.Observation, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		o, err := observationFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		out = append(out, o)
	}

	if err := models.ValidateObservations(out); err != nil {
		return nil, err
	}
	return out, nil
}

// maxTrackID is 2^63, the first float64 that does not fit in an int64.
const maxTrackID = float64(1 << 63)

func observationFromValue(v *structpb.Value) (models.Observation, error) {
	s := v.GetStructValue()
	if s == nil {
		return models.Observation{}, fmt.Errorf("%w: not an object", models.ErrInvalidObservation)
	}
	fields := s.GetFields()

	bbox := fields["bbox"].GetListValue()
	if bbox == nil || len(bbox.GetValues()) != 4 {
		return models.Observation{}, fmt.Errorf("%w: bbox must have 4 numbers", models.ErrInvalidObservation)
	}
	var c [4]float64
	for i, n := range bbox.GetValues() {
		num, ok := n.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return models.Observation{}, fmt.Errorf("%w: bbox[%d] is not a number", models.ErrInvalidObservation, i)
		}
		c[i] = num.NumberValue
	}

	o := models.Observation{
		BBox:  models.Rect{X1: c[0], Y1: c[1], X2: c[2], Y2: c[3]},
		Label: fields["label"].GetStringValue(),
		Score: float32(fields["score"].GetNumberValue()),
	}
	if id, ok := fields["track_id"].GetKind().(*structpb.Value_NumberValue); ok {
		if id.NumberValue >= maxTrackID {
			return models.Observation{}, fmt.Errorf("%w: track_id %g out of range", models.ErrInvalidObservation, id.NumberValue)
		}
		if id.NumberValue >= 0 && id.NumberValue == math.Trunc(id.NumberValue) {
			o.TrackID = models.TrackID(int64(id.NumberValue))
		}
	}
	return o, nil
}
