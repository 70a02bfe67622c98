package models

import "time"

// Frame is one captured frame. Data holds the raw pixels for drawing;
// JPEG holds the encoded copy sent to the tracker.
type Frame struct {
	CameraID  string
	Data      []byte // BGR24, row-major
	JPEG      []byte
	Timestamp time.Time
	FrameID   int64
	Width     int
	Height    int
	Format    string
}

const FormatBGR24 = "BGR24"

// ROIRequest is the wire form of an operator-drawn ROI set.
type ROIRequest struct {
	ROIs []Rect `json:"rois" binding:"required"`
}
