package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const audioFrameInterval = 100 // milliseconds of PCM per frame

// runAudioSource reads 16-bit little-endian mono PCM from path and emits
// fixed-size frames on out. The path may be a regular file or a FIFO fed
// by the transcoder. out is closed when the source is exhausted or the
// context is cancelled.
func runAudioSource(ctx context.Context, path string, sampleRate int, out chan<- []byte, log *slog.Logger) error {
	defer close(out)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}
	defer f.Close()

	frameBytes := sampleRate / 1000 * audioFrameInterval * 2
	for {
		frame := make([]byte, frameBytes)
		n, err := io.ReadFull(f, frame)
		if n > 0 {
			select {
			case out <- frame[:n]:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Info("audio source exhausted", "path", path)
				return nil
			}
			return fmt.Errorf("read audio source: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
