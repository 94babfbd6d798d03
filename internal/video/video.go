// Package video runs the per-frame watermark pipeline on top of ffmpeg: frames are
// decoded to raw RGBA, composited one by one and piped into an MP4 encoder.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/UnendingLoop/WatermarkStudio/internal/imageproc"
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/wb-go/wbf/zlog"
)

// Info - то, что нужно знать о ролике до декодирования кадров
type Info struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64
	HasAudio bool
}

// Runner runs an external command with stdin and returns its stdout.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

type Processor struct {
	ffmpeg      string
	ffprobe     string
	fallbackFPS float64
	run         Runner
}

func NewProcessor(ffmpegPath, ffprobePath string, fallbackFPS float64) *Processor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if fallbackFPS <= 0 {
		fallbackFPS = 25
	}
	return &Processor{ffmpeg: ffmpegPath, ffprobe: ffprobePath, fallbackFPS: fallbackFPS, run: execRunner}
}

// Probe reads dimensions, frame rate and duration of the video in data.
func (p *Processor) Probe(ctx context.Context, data []byte) (*Info, error) {
	in, cleanup, err := tempFile(data, "src-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return p.probeFile(ctx, in)
}

// Frame grabs a single frame at the given second; used by the interactive preview.
func (p *Processor) Frame(ctx context.Context, data []byte, at float64) (image.Image, error) {
	in, cleanup, err := tempFile(data, "src-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if at < 0 {
		at = 0
	}
	out, err := p.run(ctx, nil, p.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", in,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("grab frame: %w", err)
	}
	if len(out) == 0 {
		// позиция за концом ролика - берем первый кадр
		if at > 0 {
			return p.Frame(ctx, data, 0)
		}
		return nil, fmt.Errorf("grab frame: %w", model.ErrEmptySource)
	}

	img, _, err := imageproc.DecodeImage(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode grabbed frame: %w", err)
	}
	return img, nil
}

// Watermark redraws every frame of the video in data with mark and returns an MP4.
// The audio track, if any, is re-encoded to AAC.
func (p *Processor) Watermark(ctx context.Context, data []byte, mark image.Image, params model.Params) ([]byte, error) {
	in, cleanupIn, err := tempFile(data, "src-*")
	if err != nil {
		return nil, err
	}
	defer cleanupIn()

	info, err := p.probeFile(ctx, in)
	if err != nil {
		return nil, err
	}

	outFile, err := os.CreateTemp("", "wm-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	out := outFile.Name()
	_ = outFile.Close()
	defer removeFile(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, err := newDecoder(ctx, p.ffmpeg, in, info.Width, info.Height)
	if err != nil {
		return nil, err
	}
	sink, err := newEncoder(ctx, p.ffmpeg, in, out, info)
	if err != nil {
		cancel()
		_ = src.Wait()
		return nil, err
	}

	fc := imageproc.NewFrameCompositor(mark, params, 1)
	frames, pumpErr := Pump(ctx, src, sink, fc.Draw)
	if pumpErr != nil {
		cancel()
	}

	srcErr := src.Wait()
	sinkErr := sink.Close()

	switch {
	case pumpErr != nil:
		return nil, fmt.Errorf("watermark frames: %w", pumpErr)
	case srcErr != nil:
		return nil, fmt.Errorf("decode frames: %w", srcErr)
	case sinkErr != nil:
		return nil, fmt.Errorf("encode frames: %w", sinkErr)
	case frames == 0:
		return nil, fmt.Errorf("decode frames: %w", model.ErrEmptySource)
	}

	res, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read encoded video: %w", err)
	}
	return res, nil
}

func (p *Processor) probeFile(ctx context.Context, path string) (*Info, error) {
	out, err := p.run(ctx, nil, p.ffprobe,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,avg_frame_rate,r_frame_rate:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	if info.FPS <= 0 {
		info.FPS = p.fallbackFPS
	}
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []sideData `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type sideData struct {
	Rotation float64 `json:"rotation"`
}

// quarterTurn - true, если поток повернут на 90 или 270 градусов
func quarterTurn(tag string, list []sideData) bool {
	angle := 0
	for _, sd := range list {
		if r := sd.Rotation; r != 0 {
			angle = int(math.Round(r))
			break
		}
	}
	if angle == 0 && tag != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(tag)); err == nil {
			angle = v
		}
	}
	angle = ((angle % 360) + 360) % 360
	return angle == 90 || angle == 270
}

func parseProbe(raw []byte) (*Info, error) {
	var po probeOutput
	if err := json.Unmarshal(raw, &po); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &Info{}
	found := false
	for _, s := range po.Streams {
		switch s.CodecType {
		case "video":
			if found {
				continue
			}
			found = true
			info.Width, info.Height = s.Width, s.Height
			// ffmpeg применяет поворот при декодировании, кадры приходят уже развернутыми
			if quarterTurn(s.Tags.Rotate, s.SideDataList) {
				info.Width, info.Height = s.Height, s.Width
			}
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !found || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: no video stream", model.ErrUnsupportedFormat)
	}

	if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	return info, nil
}

// parseRate - ffprobe отдает частоту дробью: "30000/1001"
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func tempFile(data []byte, pattern string) (string, func(), error) {
	if len(data) == 0 {
		return "", nil, model.ErrEmptySource
	}
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp input: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		removeFile(name)
		return "", nil, fmt.Errorf("write temp input: %w", err)
	}
	if err := f.Close(); err != nil {
		removeFile(name)
		return "", nil, fmt.Errorf("close temp input: %w", err)
	}
	return name, func() { removeFile(name) }, nil
}

func removeFile(name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		zlog.Logger.Warn().Err(err).Str("file", name).Msg("Failed to remove temp file")
	}
}

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s is not installed: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w\noutput: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
