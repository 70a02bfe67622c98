package streamcapture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

const maxConsecutiveErrors = 10

// Source reads frames from a webcam, a video file or a network stream and
// hands them out one per Next call, raw and JPEG-encoded.
type Source struct {
	cfg     *config.Config
	cap     *gocv.VideoCapture
	img     gocv.Mat
	live    bool
	frameID int64
	last    time.Time
}

// Open opens cfg.VideoSource. A bare integer is a webcam index; anything
// else is a file path or stream URL.
func Open(cfg *config.Config) (*Source, error) {
	src := cfg.VideoSource
	var (
		cap  *gocv.VideoCapture
		err  error
		live bool
	)

	if idx, convErr := strconv.Atoi(src); convErr == nil {
		live = true
		cap, err = gocv.OpenVideoCapture(idx)
	} else {
		if isStream(src) {
			live = true
			configureFFmpegOptions()
		}
		cap, err = gocv.OpenVideoCaptureWithAPI(src, gocv.VideoCaptureFFmpeg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", src, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video source %s is not opened", src)
	}
	if live {
		cap.Set(gocv.VideoCaptureBufferSize, 1)
	}

	log.Info().
		Str("source", src).
		Bool("live", live).
		Float64("fps", cap.Get(gocv.VideoCaptureFPS)).
		Float64("width", cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("📷 Video source opened")

	return &Source{cfg: cfg, cap: cap, img: gocv.NewMat(), live: live}, nil
}

// Next blocks until the next frame is available, paced to MAX_FPS. It
// returns io.EOF at the end of a recorded file.
func (s *Source) Next(ctx context.Context) (models.Frame, error) {
	if err := s.pace(ctx); err != nil {
		return models.Frame{}, err
	}

	consecutiveErrors := 0
	for {
		if err := ctx.Err(); err != nil {
			return models.Frame{}, err
		}

		if s.cap.Read(&s.img) && !s.img.Empty() {
			break
		}
		if !s.live {
			return models.Frame{}, io.EOF
		}

		consecutiveErrors++
		log.Warn().Int("consecutive_errors", consecutiveErrors).Msg("Failed to read frame from VideoCapture")
		if consecutiveErrors >= maxConsecutiveErrors {
			return models.Frame{}, fmt.Errorf("too many consecutive read errors (%d)", consecutiveErrors)
		}

		// Progressive delay based on error count
		delay := time.Duration(consecutiveErrors*50) * time.Millisecond
		select {
		case <-ctx.Done():
			return models.Frame{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.img, []int{gocv.IMWriteJpegQuality, s.cfg.TrackerJPEGQuality})
	if err != nil {
		return models.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	s.frameID++
	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())

	return models.Frame{
		CameraID:  s.cfg.CameraID,
		Data:      s.img.ToBytes(),
		JPEG:      encoded,
		Timestamp: time.Now(),
		FrameID:   s.frameID,
		Width:     s.img.Cols(),
		Height:    s.img.Rows(),
		Format:    models.FormatBGR24,
	}, nil
}

func (s *Source) pace(ctx context.Context) error {
	if s.cfg.MaxFPS <= 0 || s.last.IsZero() {
		s.last = time.Now()
		return nil
	}
	wait := time.Second/time.Duration(s.cfg.MaxFPS) - time.Since(s.last)
	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	s.last = time.Now()
	return nil
}

func (s *Source) Close() error {
	var errs []error
	if err := s.img.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.cap.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isStream(src string) bool {
	for _, scheme := range []string{"rtsp://", "rtmp://", "http://", "https://"} {
		if strings.HasPrefix(strings.ToLower(src), scheme) {
			return true
		}
	}
	return false
}

// configureFFmpegOptions sets the low-latency options the OpenCV FFmpeg
// backend reads when opening a network stream.
func configureFFmpegOptions() {
	opts := []string{
		"rtsp_transport;tcp",
		"buffer_size;2097152",
		"max_delay;500000",
		"stimeout;5000000",
		"flags;low_delay",
		"fflags;nobuffer+flush_packets",
		"reconnect;1",
		"reconnect_streamed;1",
		"reconnect_delay_max;2",
	}
	joined := strings.Join(opts, "|")
	os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", joined)
	log.Debug().Str("ffmpeg_options", joined).Msg("FFmpeg options configured for OpenCV")
}
