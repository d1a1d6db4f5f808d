package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/TIANLI0/DieCutKit/contour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemover 记录调用次数，返回预设的结果
type fakeRemover struct {
	mu    sync.Mutex
	calls int
	img   image.Image
	err   error
	panic bool
}

func (f *fakeRemover) Remove(_ context.Context, _ ImageRef) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("remover exploded")
	}
	return f.img, f.err
}

type fakeStore struct {
	names []string
	err   error
}

func (s *fakeStore) Put(_ context.Context, name string, data []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	return "/processed/" + name, nil
}

// squareImage 中心为不透明黑色方块，四周 margin 像素透明
func squareImage(w, h, margin int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	return img
}

func opaqueImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 180, B: 40, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) ImageRef {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return ImageRef{Name: "test.png", Data: buf.Bytes()}
}

func recordStages(opts *Options) *[]Stage {
	var stages []Stage
	opts.OnProgress = func(s Stage) { stages = append(stages, s) }
	return &stages
}

func TestGenerateCenteredSquare(t *testing.T) {
	remover := &fakeRemover{err: errors.New("must not be called")}
	p := NewProcessor(nil, remover, nil)

	opts := DefaultOptions()
	opts.BleedMm = 3
	opts.DPI = 72
	stages := recordStages(&opts)

	res, err := p.Generate(context.Background(), encodePNG(t, squareImage(512, 512, 64)), opts)
	require.NoError(t, err)

	assert.Equal(t, 0, remover.calls)
	assert.False(t, res.BgRemoved)
	assert.Equal(t, 512, res.Width)
	assert.Equal(t, 512, res.Height)
	assert.Equal(t, []Stage{StageLoading, StageTracing, StageDone}, *stages)

	cut := contour.Polygon(res.CutPoints)
	lo, hi := cut.Bounds()
	assert.InDelta(t, 64, lo.X, 1.5)
	assert.InDelta(t, 64, lo.Y, 1.5)
	assert.InDelta(t, 448, hi.X, 1.5)
	assert.InDelta(t, 448, hi.Y, 1.5)
	assert.InDelta(t, 384, hi.X-lo.X, 1.5)
	assert.Greater(t, cut.SignedArea(), 0.0)

	margin := contour.MillimetersToPixels(3, 72)
	assert.InDelta(t, 8.5, margin, 0.01)

	bleed := contour.Polygon(res.BleedPoints)
	blo, bhi := bleed.Bounds()
	assert.InDelta(t, margin, lo.X-blo.X, 0.1)
	assert.InDelta(t, margin, lo.Y-blo.Y, 0.1)
	assert.InDelta(t, margin, bhi.X-hi.X, 0.1)
	assert.InDelta(t, margin, bhi.Y-hi.Y, 0.1)

	require.Len(t, res.BleedPoints, len(res.CutPoints))
	for i := range res.CutPoints {
		d := res.BleedPoints[i].Sub(res.CutPoints[i]).Len()
		assert.GreaterOrEqual(t, d, margin-1e-6)
		assert.LessOrEqual(t, d, margin*contour.DefaultMiterLimit+1e-6)
	}

	assert.NotEmpty(t, res.CutPath)
	assert.NotEmpty(t, res.BleedPath)
	assert.Contains(t, res.ProofSVG, res.CutPath)
	assert.Contains(t, res.ProofSVG, res.BleedPath)
	assert.Nil(t, res.PreviewPNG)
}

func TestGenerateOpaqueImageWithFailingRemover(t *testing.T) {
	remover := &fakeRemover{err: errors.New("service unavailable")}
	p := NewProcessor(nil, remover, &fakeStore{})

	opts := DefaultOptions()
	stages := recordStages(&opts)

	res, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(64, 48)), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, remover.calls)
	assert.False(t, res.BgRemoved)
	assert.Empty(t, res.ProcessedImageRef)
	assert.Equal(t, []Stage{StageLoading, StageRemovingBg, StageTracing, StageDone}, *stages)

	lo, hi := contour.Polygon(res.CutPoints).Bounds()
	assert.InDelta(t, 0, lo.X, 1.5)
	assert.InDelta(t, 0, lo.Y, 1.5)
	assert.InDelta(t, 64, hi.X, 1.5)
	assert.InDelta(t, 48, hi.Y, 1.5)
}

func TestGenerateRemoverPanicIsContained(t *testing.T) {
	p := NewProcessor(nil, &fakeRemover{panic: true}, nil)

	res, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(20, 20)), DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.BgRemoved)
}

func TestGenerateWithoutRemover(t *testing.T) {
	p := NewProcessor(nil, nil, nil)

	res, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(20, 10)), DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.BgRemoved)
}

func TestGenerateUsesRemovedBackground(t *testing.T) {
	remover := &fakeRemover{img: squareImage(200, 100, 20)}
	store := &fakeStore{}
	p := NewProcessor(nil, remover, store)

	res, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(200, 100)), DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.BgRemoved)
	require.Len(t, store.names, 1)
	assert.Equal(t, "/processed/"+store.names[0], res.ProcessedImageRef)

	lo, hi := contour.Polygon(res.CutPoints).Bounds()
	assert.InDelta(t, 20, lo.X, 1.5)
	assert.InDelta(t, 20, lo.Y, 1.5)
	assert.InDelta(t, 180, hi.X, 1.5)
	assert.InDelta(t, 80, hi.Y, 1.5)
}

func TestGenerateStoreFailureKeepsResult(t *testing.T) {
	remover := &fakeRemover{img: squareImage(40, 40, 5)}
	p := NewProcessor(nil, remover, &fakeStore{err: errors.New("disk full")})

	res, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(40, 40)), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.BgRemoved)
	assert.Empty(t, res.ProcessedImageRef)
}

func TestGenerateTwoPercentTransparencySkipsRemoval(t *testing.T) {
	// 100x50 共 5000 像素，步长为 1，首行 100 个透明像素即 2%
	img := opaqueImage(100, 50)
	for x := 0; x < 100; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{})
	}

	working := RasterFromImage(img)
	assert.True(t, HasTransparency(working))

	remover := &fakeRemover{}
	p := NewProcessor(nil, remover, nil)
	opts := DefaultOptions()
	stages := recordStages(&opts)

	res, err := p.Generate(context.Background(), encodePNG(t, img), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, remover.calls)
	assert.False(t, res.BgRemoved)
	assert.NotContains(t, *stages, StageRemovingBg)
}

func TestGenerateDownsamplesAndRestoresScale(t *testing.T) {
	p := NewProcessor(nil, nil, nil)
	opts := DefaultOptions()
	opts.Preview = true

	res, err := p.Generate(context.Background(), encodePNG(t, squareImage(2048, 1024, 256)), opts)
	require.NoError(t, err)

	assert.Equal(t, 2048, res.Width)
	assert.Equal(t, 1024, res.Height)

	lo, hi := contour.Polygon(res.CutPoints).Bounds()
	assert.InDelta(t, 256, lo.X, 8)
	assert.InDelta(t, 256, lo.Y, 8)
	assert.InDelta(t, 1792, hi.X, 8)
	assert.InDelta(t, 768, hi.Y, 8)

	require.NotEmpty(t, res.PreviewPNG)
	preview, err := png.Decode(bytes.NewReader(res.PreviewPNG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 512, 256), preview.Bounds())
}

func TestGenerateDecodeFailure(t *testing.T) {
	p := NewProcessor(nil, nil, nil)
	_, err := p.Generate(context.Background(), ImageRef{Name: "junk.bin", Data: []byte("not an image")}, DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestGenerateFullyTransparent(t *testing.T) {
	p := NewProcessor(nil, &fakeRemover{}, nil)
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))

	res, err := p.Generate(context.Background(), encodePNG(t, img), DefaultOptions())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoContour)
}

func TestGenerateStraightLines(t *testing.T) {
	p := NewProcessor(nil, nil, nil)
	opts := DefaultOptions()
	opts.StraightLines = true

	res, err := p.Generate(context.Background(), encodePNG(t, squareImage(64, 64, 8)), opts)
	require.NoError(t, err)
	assert.NotContains(t, res.CutPath, "C")
	assert.Contains(t, res.CutPath, "L")
}

func TestGenerateConcurrentCallsAreIndependent(t *testing.T) {
	p := NewProcessor(nil, nil, nil)
	ref := encodePNG(t, squareImage(128, 128, 16))

	const n = 8
	results := make([]*Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Generate(context.Background(), ref, DefaultOptions())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].CutPath, results[i].CutPath)
	}
}

func TestRegenerateBleedDeterministic(t *testing.T) {
	cut := []contour.Point{{X: 10, Y: 10}, {X: 90, Y: 12}, {X: 95, Y: 80}, {X: 40, Y: 95}, {X: 8, Y: 60}}

	a := RegenerateBleed(cut, 2, 300)
	b := RegenerateBleed(cut, 2, 300)
	assert.Equal(t, a.Path, b.Path)
	assert.Equal(t, a.Points, b.Points)

	c := RegenerateBleed(cut, 4, 300)
	assert.NotEqual(t, a.Path, c.Path)
}

func TestRegenerateBleedZeroDistance(t *testing.T) {
	cut := []contour.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	res := RegenerateBleed(cut, 0, 300)
	assert.Equal(t, cut, res.Points)
}

func TestRegenerateBleedNormalisesWinding(t *testing.T) {
	ccw := []contour.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}}
	res := RegenerateBleed(ccw, 25.4, 1)

	lo, hi := contour.Polygon(res.Points).Bounds()
	assert.InDelta(t, -1, lo.X, 1e-9)
	assert.InDelta(t, 11, hi.X, 1e-9)
}

func TestHasTransparencyThreshold(t *testing.T) {
	// 恰好 1% 不算可用透明度
	img := opaqueImage(100, 50)
	for x := 0; x < 50; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{A: 10})
	}
	assert.False(t, HasTransparency(RasterFromImage(img)))

	img.SetNRGBA(50, 0, color.NRGBA{A: 10})
	assert.True(t, HasTransparency(RasterFromImage(img)))
}

func TestOrderLineMetadata(t *testing.T) {
	meta := OrderLineMetadata("M0 0 Z", 2.5, "")
	assert.Equal(t, map[string]string{
		MetaCutPath: "M0 0 Z",
		MetaBleedMm: "2.5",
	}, meta)

	meta = OrderLineMetadata("M0 0 Z", 3, "s3://bucket/bg.png")
	assert.Equal(t, "s3://bucket/bg.png", meta[MetaProcessedImage])
}

func TestGenerateRestoresEachAxis(t *testing.T) {
	// 1800x30 缩小到 512x9，纵向比例 0.3 与横向 0.2844 不同
	p := NewProcessor(nil, nil, nil)

	res, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(1800, 30)), DefaultOptions())
	require.NoError(t, err)

	lo, hi := contour.Polygon(res.CutPoints).Bounds()
	assert.InDelta(t, 0, lo.X, 2)
	assert.InDelta(t, 1800, hi.X, 2)
	assert.InDelta(t, 0, lo.Y, 0.5)
	assert.InDelta(t, 30, hi.Y, 0.5)
}

func TestGenerateRejectsOversizedImage(t *testing.T) {
	p := NewProcessor(DecodeSource{MaxPixels: 100}, nil, nil)

	_, err := p.Generate(context.Background(), encodePNG(t, opaqueImage(20, 20)), DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	p = NewProcessor(DecodeSource{MaxPixels: 400}, nil, nil)
	_, err = p.Generate(context.Background(), encodePNG(t, opaqueImage(20, 20)), DefaultOptions())
	assert.NoError(t, err)
}

type pngTranscoder struct {
	data  []byte
	calls int
}

func (tc *pngTranscoder) Transcode(_ context.Context, _ []byte) ([]byte, error) {
	tc.calls++
	return tc.data, nil
}

func TestDecodeSourceLimitsTranscodedImage(t *testing.T) {
	tc := &pngTranscoder{data: encodePNG(t, opaqueImage(20, 20)).Data}

	_, err := DecodeSource{Transcoder: tc, MaxPixels: 100}.Load(context.Background(), ImageRef{Name: "a.heic", Data: []byte("ftypheic")})
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Equal(t, 1, tc.calls)

	r, err := DecodeSource{Transcoder: tc}.Load(context.Background(), ImageRef{Name: "a.heic", Data: []byte("ftypheic")})
	require.NoError(t, err)
	assert.Equal(t, 20, r.Width)
}

func TestGenerateStraightLinesPreview(t *testing.T) {
	p := NewProcessor(nil, nil, nil)
	opts := DefaultOptions()
	opts.StraightLines = true
	opts.Preview = true

	res, err := p.Generate(context.Background(), encodePNG(t, squareImage(64, 64, 8)), opts)
	require.NoError(t, err)
	assert.NotContains(t, res.BleedPath, "C")
	require.NotEmpty(t, res.PreviewPNG)
}
