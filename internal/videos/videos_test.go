package videos

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakit-go/mediakit/internal/events"
	"github.com/mediakit-go/mediakit/internal/images"
	"github.com/mediakit-go/mediakit/internal/source"
	"github.com/mediakit-go/mediakit/internal/storage"
	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/db"
	"github.com/mediakit-go/mediakit/pkg/db/models"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

func pngFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

// mp4Bytes is a minimal ftyp box, enough for container sniffing.
func mp4Bytes(payload string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x18})
	buf.WriteString("ftypisom")
	buf.Write([]byte{0x00, 0x00, 0x02, 0x00})
	buf.WriteString("isomiso2")
	buf.WriteString(payload)
	return buf.Bytes()
}

type stubTranscoder struct {
	calls    []string
	duration time.Duration
	frame    []byte
}

func (s *stubTranscoder) Transcode(_ context.Context, src, dst, format string, quality int) error {
	s.calls = append(s.calls, fmt.Sprintf("%s:%d", format, quality))
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("transcoded-"+format), 0o644)
}

func (s *stubTranscoder) ExtractFrame(context.Context, string, time.Duration) ([]byte, error) {
	return s.frame, nil
}

func (s *stubTranscoder) Duration(context.Context, string) (time.Duration, error) {
	return s.duration, nil
}

type testOwner struct {
	model       string
	objectID    string
	derivatives map[string]Variant
}

func (o *testOwner) ModelName() string                    { return o.model }
func (o *testOwner) ObjectKey() string                    { return o.objectID }
func (o *testOwner) VideoDerivatives() map[string]Variant { return o.derivatives }

func defaultOwner() *testOwner {
	return &testOwner{
		model:    "products",
		objectID: "p1",
		derivatives: map[string]Variant{
			"web": {Format: "webm", Quality: 70},
		},
	}
}

type recorder struct {
	added     []events.AssetAdded
	removed   []events.AssetRemoved
	positions []events.PositionsChanged
}

func (r *recorder) AssetAdded(_ context.Context, e events.AssetAdded) error {
	r.added = append(r.added, e)
	return nil
}

func (r *recorder) AssetRemoved(_ context.Context, e events.AssetRemoved) error {
	r.removed = append(r.removed, e)
	return nil
}

func (r *recorder) PositionsChanged(_ context.Context, e events.PositionsChanged) error {
	r.positions = append(r.positions, e)
	return nil
}

type fixture struct {
	svc    *Service
	disk   *storage.LocalDisk
	dbc    *db.Client
	codec  *stubTranscoder
	events *recorder
}

func newFixture(t *testing.T, cfg config.MediaConfig) *fixture {
	t.Helper()

	dbc, err := db.New(context.Background(), config.DBConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "videos.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })
	require.NoError(t, dbc.DB().AutoMigrate(&models.Video{}, &models.Image{}))

	disk := storage.NewLocalDisk("test", t.TempDir(), "https://cdn.test")
	manager, err := storage.NewManager("test", disk)
	require.NoError(t, err)

	rec := &recorder{}
	codec := &stubTranscoder{duration: 10 * time.Second}
	if cfg.DefaultQuality == 0 {
		cfg.DefaultQuality = 90
	}
	imageSvc := images.NewService(dbc, manager, nil, nil, cfg, rec, nil, nil)
	svc := NewService(dbc, manager, codec, imageSvc, cfg, config.VideoConfig{}, rec, nil, nil)
	return &fixture{svc: svc, disk: disk, dbc: dbc, codec: codec, events: rec}
}

func TestAddStoresOriginalAndTranscodes(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	row, err := col.Add(ctx, source.FromBytes(mp4Bytes("payload"), "clip.mp4"), AddOptions{})
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", row.FilenameValue())
	assert.Equal(t, "mp4", row.FormatValue())
	assert.True(t, row.Main)
	assert.True(t, row.IsLocal())

	got, err := f.disk.Get(ctx, "videos/products/p1/original/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, mp4Bytes("payload"), got)

	got, err = f.disk.Get(ctx, "videos/products/p1/web/clip.webm")
	require.NoError(t, err)
	assert.Equal(t, []byte("transcoded-webm"), got)
	assert.Equal(t, []string{"webm:70"}, f.codec.calls)

	require.Len(t, f.events.added, 1)
	assert.Equal(t, events.KindVideo, f.events.added[0].Kind)
	assert.NotEmpty(t, f.events.added[0].ID)
}

func TestAddSuffixesDuplicateFilenames(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	first, err := col.Add(ctx, source.FromBytes(mp4Bytes("a"), "clip.mp4"), AddOptions{})
	require.NoError(t, err)
	second, err := col.Add(ctx, source.FromBytes(mp4Bytes("b"), "clip.mp4"), AddOptions{})
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", first.FilenameValue())
	assert.Equal(t, "clip-2.mp4", second.FilenameValue())
}

func TestAddRemoteStoresURLOnly(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	row, err := col.Add(ctx, source.Source{RemoteURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, AddOptions{})
	require.NoError(t, err)

	assert.False(t, row.IsLocal())
	assert.Nil(t, row.Filename)
	assert.True(t, row.Main)
	require.NotNil(t, row.URL)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", *row.URL)

	u, err := col.URL(row, VariantOriginal)
	require.NoError(t, err)
	assert.Equal(t, *row.URL, u)

	assert.Empty(t, f.codec.calls, "remote videos are never transcoded")
}

func TestAddRemoteInvalidURLRejected(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())

	_, err := col.Add(context.Background(), source.Source{RemoteURL: "not a url"}, AddOptions{})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestAddChunkedAssemblesAndCleansScratch(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	payload := mp4Bytes("chunked-payload")
	third := len(payload) / 3

	row, err := col.AddChunked(ctx, payload[:third], false, "clip.mp4", AddOptions{})
	require.NoError(t, err)
	assert.Nil(t, row, "intermediate chunks return no row")

	row, err = col.AddChunked(ctx, payload[third:2*third], false, "clip.mp4", AddOptions{})
	require.NoError(t, err)
	assert.Nil(t, row)

	row, err = col.AddChunked(ctx, payload[2*third:], true, "clip.mp4", AddOptions{})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "clip.mp4", row.FilenameValue())

	got, err := f.disk.Get(ctx, "videos/products/p1/original/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	exists, err := f.disk.Exists(ctx, "videos/products/p1/_chunks/clip.mp4")
	require.NoError(t, err)
	assert.False(t, exists, "scratch file must be cleaned up")
}

func TestDeclaredOriginalGeneratedFirst(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	owner := &testOwner{
		model:    "products",
		objectID: "p1",
		derivatives: map[string]Variant{
			// sorts ahead of "original" yet must derive from its result
			"archive":       {Format: "mkv", Quality: 50},
			VariantOriginal: {Format: "flv", Quality: 60},
		},
	}
	col := f.svc.For(owner)

	_, err := col.Add(context.Background(), source.FromBytes(mp4Bytes("payload"), "clip.mp4"), AddOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"flv:60", "mkv:50"}, f.codec.calls)
}

func TestExtraContainerSkipsRenditionOwnContainer(t *testing.T) {
	f := newFixture(t, config.MediaConfig{
		VideoExtraFormats: config.ExtraFormatList{{Format: "webm", Quality: 60}},
	})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	_, err := col.Add(ctx, source.FromBytes(mp4Bytes("payload"), "clip.mp4"), AddOptions{})
	require.NoError(t, err)

	// one conversion for the original's webm sibling, one for the webm
	// rendition; the rendition must not be re-wrapped into webm again
	assert.Equal(t, []string{"webm:60", "webm:70"}, f.codec.calls)

	got, err := f.disk.Get(ctx, "videos/products/p1/web/clip.webm")
	require.NoError(t, err)
	assert.Equal(t, []byte("transcoded-webm"), got)
}

type failingDeleteDirDisk struct {
	*storage.LocalDisk
}

func (d *failingDeleteDirDisk) DeleteDir(context.Context, string) error {
	return errors.New(errors.CodeStorageDelete, "delete denied")
}

func TestAddChunkedFinalChunkFailureCleansScratch(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})

	local := storage.NewLocalDisk("test", t.TempDir(), "")
	disk := &failingDeleteDirDisk{LocalDisk: local}
	manager, err := storage.NewManager("test", disk)
	require.NoError(t, err)

	svc := NewService(f.dbc, manager, f.codec, nil, config.MediaConfig{DefaultQuality: 90}, config.VideoConfig{}, nil, nil, nil)
	col := svc.For(defaultOwner())
	ctx := context.Background()

	_, err = col.AddChunked(ctx, mp4Bytes("partial"), true, "clip.mp4", AddOptions{})
	require.Error(t, err)

	exists, err := local.Exists(ctx, "videos/products/p1/_chunks/clip.mp4")
	require.NoError(t, err)
	assert.False(t, exists, "scratch must not survive a failed final chunk")
}

func TestAddChunkedEmptyUploadRejected(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())

	_, err := col.AddChunked(context.Background(), nil, true, "clip.mp4", AddOptions{})
	require.Error(t, err)
}

func TestRemovePromotesNextAndDeletesFiles(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	a, err := col.Add(ctx, source.FromBytes(mp4Bytes("a"), "a.mp4"), AddOptions{})
	require.NoError(t, err)
	b, err := col.Add(ctx, source.FromBytes(mp4Bytes("b"), "b.mp4"), AddOptions{})
	require.NoError(t, err)

	require.NoError(t, col.Remove(ctx, Ref{ID: a.ID}))

	for _, path := range []string{
		"videos/products/p1/original/a.mp4",
		"videos/products/p1/web/a.webm",
	} {
		exists, err := f.disk.Exists(ctx, path)
		require.NoError(t, err)
		assert.False(t, exists, path)
	}

	main, err := col.Main(ctx, "", "")
	require.NoError(t, err)
	require.NotNil(t, main)
	assert.Equal(t, b.ID, main.ID)

	require.Len(t, f.events.removed, 1)
}

func TestRemoveRemoteTouchesNoFiles(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	row, err := col.Add(ctx, source.Source{RemoteURL: "https://vimeo.com/12345"}, AddOptions{})
	require.NoError(t, err)

	require.NoError(t, col.Remove(ctx, Ref{ID: row.ID}))

	rows, err := col.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRemoveAllDropsSubtreeAndRows(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	_, err := col.Add(ctx, source.FromBytes(mp4Bytes("a"), "a.mp4"), AddOptions{})
	require.NoError(t, err)
	_, err = col.Add(ctx, source.Source{RemoteURL: "https://vimeo.com/12345"}, AddOptions{})
	require.NoError(t, err)

	require.NoError(t, col.RemoveAll(ctx))

	rows, err := col.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	exists, err := f.disk.Exists(ctx, "videos/products/p1/original/a.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReorderRenumbersFromOne(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	a, err := col.Add(ctx, source.FromBytes(mp4Bytes("a"), "a.mp4"), AddOptions{})
	require.NoError(t, err)
	b, err := col.Add(ctx, source.FromBytes(mp4Bytes("b"), "b.mp4"), AddOptions{})
	require.NoError(t, err)

	require.NoError(t, col.Reorder(ctx, []uint{b.ID, a.ID}))

	rows, err := col.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, b.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].Position)
	assert.Equal(t, 2, rows[1].Position)
}

func TestSetMainIsExclusivePerPartition(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	_, err := col.Add(ctx, source.FromBytes(mp4Bytes("a"), "a.mp4"), AddOptions{})
	require.NoError(t, err)
	b, err := col.Add(ctx, source.FromBytes(mp4Bytes("b"), "b.mp4"), AddOptions{})
	require.NoError(t, err)

	require.NoError(t, col.SetMain(ctx, b))

	rows, err := col.List(ctx)
	require.NoError(t, err)
	mains := 0
	for _, row := range rows {
		if row.Main {
			mains++
			assert.Equal(t, b.ID, row.ID)
		}
	}
	assert.Equal(t, 1, mains)
}

type failingDisk struct {
	*storage.LocalDisk
	failPrefix string
}

func (d *failingDisk) Put(ctx context.Context, path string, data []byte) error {
	if strings.Contains(path, d.failPrefix) {
		return errors.New(errors.CodeStorageWrite, "disk full")
	}
	return d.LocalDisk.Put(ctx, path, data)
}

func TestAddRollsBackRowAndFilesOnFailure(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})

	local := storage.NewLocalDisk("test", t.TempDir(), "")
	disk := &failingDisk{LocalDisk: local, failPrefix: "/web/"}
	manager, err := storage.NewManager("test", disk)
	require.NoError(t, err)

	svc := NewService(f.dbc, manager, f.codec, nil, config.MediaConfig{DefaultQuality: 90}, config.VideoConfig{}, nil, nil, nil)
	col := svc.For(defaultOwner())
	ctx := context.Background()

	_, err = col.Add(ctx, source.FromBytes(mp4Bytes("a"), "clip.mp4"), AddOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeStorageWrite))

	rows, err := col.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "the row must not survive a failed write")

	exists, err := local.Exists(ctx, "videos/products/p1/original/clip.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateFramesAddsImageAssets(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	f.codec.frame = pngFrame(t)
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	row, err := col.Add(ctx, source.FromBytes(mp4Bytes("a"), "clip.mp4"), AddOptions{})
	require.NoError(t, err)

	frames, err := col.CreateFrames(ctx, row, 3, 0)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, "clip-frame-1.png", frames[0].Filename)
	assert.Equal(t, FrameType, frames[0].TypeValue())
	assert.True(t, frames[0].Main, "first frame heads its partition")

	exists, err := f.disk.Exists(ctx, "images/products/p1/original/clip-frame-1.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateFramesRejectsRemote(t *testing.T) {
	f := newFixture(t, config.MediaConfig{})
	col := f.svc.For(defaultOwner())
	ctx := context.Background()

	row, err := col.Add(ctx, source.Source{RemoteURL: "https://vimeo.com/12345"}, AddOptions{})
	require.NoError(t, err)

	_, err = col.CreateFrames(ctx, row, 1, 0)
	assert.True(t, errors.Is(err, errors.CodeValidation))
}
