package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strconv"
)

// FrameSource yields decoded frames, io.EOF after the last one.
type FrameSource interface {
	Next() (image.Image, error)
}

// FrameSink accepts composited frames in presentation order.
type FrameSink interface {
	Write(frame image.Image) error
}

// DrawFunc composites one frame.
type DrawFunc func(frame image.Image) (image.Image, error)

// Pump moves frames from src through draw into sink until src is exhausted.
// Returns the number of frames written.
func Pump(ctx context.Context, src FrameSource, sink FrameSink, drawFn DrawFunc) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read frame %d: %w", n, err)
		}

		out, err := drawFn(frame)
		if err != nil {
			return n, fmt.Errorf("draw frame %d: %w", n, err)
		}
		if err := sink.Write(out); err != nil {
			return n, fmt.Errorf("write frame %d: %w", n, err)
		}
		n++
	}
}

//--------------------

// decoder reads raw RGBA frames from an ffmpeg process.
type decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	frame  *image.RGBA
}

func newDecoder(ctx context.Context, ffmpeg, in string, w, h int) (*decoder, error) {
	cmd := exec.CommandContext(ctx, ffmpeg,
		"-v", "error",
		"-i", in,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decoder stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg decoder: %w", err)
	}
	return &decoder{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		frame:  image.NewRGBA(image.Rect(0, 0, w, h)),
	}, nil
}

// Next reuses one frame buffer: the caller must be done with the previous frame.
func (d *decoder) Next() (image.Image, error) {
	if _, err := io.ReadFull(d.stdout, d.frame.Pix); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// обрезанный последний кадр не пишем
			return nil, io.EOF
		}
		return nil, err
	}
	return d.frame, nil
}

func (d *decoder) Wait() error {
	// дочитываем хвост, чтобы процесс не повис на записи в закрытую трубу
	_, _ = io.Copy(io.Discard, d.stdout)
	if err := d.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg decoder: %w\noutput: %s", err, d.stderr.String())
	}
	return nil
}

//--------------------

// encoder feeds raw RGBA frames into an ffmpeg process producing H.264 MP4.
type encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	buf    *image.RGBA
}

func newEncoder(ctx context.Context, ffmpeg, in, out string, info *Info) (*encoder, error) {
	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", strconv.Itoa(info.Width) + "x" + strconv.Itoa(info.Height),
		"-r", strconv.FormatFloat(info.FPS, 'f', 3, 64),
		"-i", "-",
	}
	if info.HasAudio {
		args = append(args, "-i", in, "-map", "0:v:0", "-map", "1:a:0", "-c:a", "aac", "-shortest")
	}
	args = append(args,
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out,
	)

	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder stdin: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg encoder: %w", err)
	}
	return &encoder{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		buf:    image.NewRGBA(image.Rect(0, 0, info.Width, info.Height)),
	}, nil
}

func (e *encoder) Write(frame image.Image) error {
	pix := e.buf.Pix
	if rgba, ok := frame.(*image.RGBA); ok && rgba.Rect.Eq(e.buf.Rect) && rgba.Stride == e.buf.Stride {
		pix = rgba.Pix
	} else {
		draw.Draw(e.buf, e.buf.Bounds(), frame, frame.Bounds().Min, draw.Src)
	}
	_, err := e.stdin.Write(pix)
	return err
}

func (e *encoder) Close() error {
	if err := e.stdin.Close(); err != nil {
		return fmt.Errorf("close ffmpeg encoder stdin: %w", err)
	}
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encoder: %w\noutput: %s", err, e.stderr.String())
	}
	return nil
}
