package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/config"
	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

type stepFunc struct {
	name string
	fn   func(*core.ImageData) (*core.ImageData, error)
}

func (s stepFunc) Name() string { return s.name }
func (s stepFunc) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	return s.fn(img)
}

func passthrough(name string) core.Step {
	return stepFunc{name: name, fn: func(img *core.ImageData) (*core.ImageData, error) { return img, nil }}
}

type recordingHook struct{ events []string }

func (h *recordingHook) BeforeStep(_ context.Context, name string, _ *core.ImageData) {
	h.events = append(h.events, "before:"+name)
}

func (h *recordingHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, err error) {
	h.events = append(h.events, "after:"+name)
}

type errorCounter struct{ categories []string }

func (e *errorCounter) RecordProcessingTime(string, interface{ Seconds() float64 }) {}
func (e *errorCounter) RecordThroughput(int64)                                      {}
func (e *errorCounter) RecordDecision(string)                                       {}
func (e *errorCounter) RecordError(_ string, category string) {
	e.categories = append(e.categories, category)
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

func TestProcess_RunsStepsInOrder(t *testing.T) {
	p := core.New(config.Default())
	hook := &recordingHook{}
	p.AddHook(hook)

	res, err := p.Process(context.Background(), core.Source{Reader: bytes.NewReader(pngMagic)},
		passthrough("decode"), passthrough("encode"))
	require.NoError(t, err)

	assert.Equal(t, core.FormatPNG, res.Primary.Format)
	assert.Equal(t, int64(len(pngMagic)), res.Primary.OriginalSize)
	assert.Contains(t, res.StepTimings, "decode")
	assert.Equal(t, []string{"before:decode", "after:decode", "before:encode", "after:encode"}, hook.events)
	assert.Equal(t, int64(1), p.ProcessedCount())
}

func TestProcess_ContentTypeHintWins(t *testing.T) {
	p := core.New(config.Default())
	res, err := p.Process(context.Background(),
		core.Source{Reader: strings.NewReader("????"), ContentType: "image/webp"}, passthrough("noop"))
	require.NoError(t, err)
	assert.Equal(t, core.FormatWebP, res.Primary.Format)
}

func TestProcess_StepErrorStops(t *testing.T) {
	p := core.New(config.Default())
	m := &errorCounter{}
	p.SetMetrics(m)

	boom := stepFunc{name: "encode", fn: func(*core.ImageData) (*core.ImageData, error) {
		return nil, apperrors.New(apperrors.CategoryEncode, "encode", errors.New("boom"))
	}}
	_, err := p.Process(context.Background(), core.Source{Reader: bytes.NewReader(pngMagic)},
		boom, passthrough("write"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryEncode))
	assert.Equal(t, []string{"encode"}, m.categories)
	assert.Equal(t, int64(1), p.ErrorCount())
	assert.Equal(t, int64(0), p.ProcessedCount())
}

func TestProcess_NoSteps(t *testing.T) {
	p := core.New(config.Default())
	_, err := p.Process(context.Background(), core.Source{Reader: bytes.NewReader(pngMagic)})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
}

func TestProcess_MaxImageBytes(t *testing.T) {
	cfg := config.Default()
	cfg.MaxImageBytes = 4
	p := core.New(cfg)
	_, err := p.Process(context.Background(), core.Source{Reader: bytes.NewReader(pngMagic)}, passthrough("decode"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
}

func TestProcess_Cancelled(t *testing.T) {
	p := core.New(config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, core.Source{Reader: bytes.NewReader(pngMagic)}, passthrough("decode"))
	assert.ErrorIs(t, err, context.Canceled)
}
