package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"pixelmap/internal/genimage"
)

type stubGenerator struct {
	data []byte
	err  error
}

func (s *stubGenerator) Generate(ctx context.Context, img []byte, mimeType, prompt string) (genimage.Generated, error) {
	if s.err != nil {
		return genimage.Generated{}, s.err
	}
	return genimage.Generated{Data: s.data, MimeType: "image/png"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	img.SetNRGBA(1, 1, color.NRGBA{0, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestPipelineProcessesAndBroadcasts(t *testing.T) {
	p := New(context.Background(), 2, &stubGenerator{data: tinyPNG(t)}, testLogger())
	defer p.Stop()

	ch, unsub := p.Subscribe()
	defer unsub()

	job := Job{ID: "j1", MemoryID: 7, Token: 3, Image: []byte("src"), MimeType: "image/jpeg", Prompt: "p"}
	if err := p.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case res := <-ch:
		if res.Error != nil {
			t.Fatalf("unexpected error: %v", res.Error)
		}
		if res.Job.MemoryID != 7 || res.Job.Token != 3 {
			t.Fatalf("job identity lost: %+v", res.Job)
		}
		if len(res.Sprite.PNG) == 0 || res.Sprite.Width != 4 {
			t.Fatalf("sprite not processed: %+v", res.Sprite)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestPipelineReportsGeneratorFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	p := New(context.Background(), 1, &stubGenerator{err: boom}, testLogger())
	defer p.Stop()

	ch, unsub := p.Subscribe()
	defer unsub()

	if err := p.Submit(Job{ID: "j2", MemoryID: 1, Token: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case res := <-ch:
		if !errors.Is(res.Error, boom) {
			t.Fatalf("expected generator error, got %v", res.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	p := New(context.Background(), 1, &stubGenerator{data: tinyPNG(t)}, testLogger())
	ch, _ := p.Subscribe()

	p.Stop()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
}
