package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dicompreset/internal/blob"
	"dicompreset/internal/manifest"
	"dicompreset/internal/observability"
	"dicompreset/internal/source"
	"dicompreset/testutil"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 9, 5, 7, 0, time.UTC) }

type staticSource struct {
	blobs []source.Blob
	err   error
}

func (s staticSource) Collect(context.Context) ([]source.Blob, error) { return s.blobs, s.err }
func (staticSource) Kind() string                                     { return "local" }

func seriesBlobs() []source.Blob {
	b := testutil.Instance{StudyUID: "1.2", SeriesUID: "1.2.3", SOPUID: "1.2.3.2", SeriesNumber: 1, InstanceNumber: 2}
	a := testutil.Instance{StudyUID: "1.2", SeriesUID: "1.2.3", SOPUID: "1.2.3.1", SeriesNumber: 1, InstanceNumber: 1}
	return []source.Blob{
		{Key: "in/b.dcm", Name: "b.dcm", Data: b.Bytes()},
		{Key: "in/a.dcm", Name: "a.dcm", Data: a.Bytes()},
		{Key: "in/junk.dcm", Name: "junk.dcm", Data: []byte("not a dicom file")},
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	ops      map[string][]bool
	fetched  map[string]int
	failures int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: map[string][]bool{}, fetched: map[string]int{}}
}

func (r *countingRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op] = append(r.ops[op], success)
}

func (r *countingRecorder) FilesFetched(src string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched[src] += n
}

func (r *countingRecorder) DecodeFailures(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures += n
}

func TestRunWritesManifestToDirectory(t *testing.T) {
	out := t.TempDir()
	rec := newCountingRecorder()
	tracer := observability.NewJSONTracer(nil)
	p := &Pipeline{Metrics: rec, Tracer: tracer, Now: fixedNow}

	res, err := p.Run(context.Background(), Request{
		Source:      staticSource{blobs: seriesBlobs()},
		DataPath:    "data",
		Format:      manifest.FormatV2,
		Destination: DirDestination{Dir: out},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.FileName != "preset_20240305_957.json" {
		t.Fatalf("file name = %s", res.FileName)
	}
	if res.Files != 3 || res.DecodeFailures != 1 || res.RunID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	want := `[{"study":{"study_instance_uid":"1.2","name":"1.2"},"series":[{"series_instance_uid":"1.2.3","items":["data/a.dcm","data/b.dcm"]}]},` +
		`{"study":{},"series":[{"items":["data/junk.dcm"]}]}]`
	if string(res.Encoded) != want {
		t.Fatalf("manifest mismatch\n got: %s\nwant: %s", res.Encoded, want)
	}
	if res.Location != filepath.Join(out, res.FileName) {
		t.Fatalf("location = %s", res.Location)
	}
	onDisk, err := os.ReadFile(res.Location)
	if err != nil || string(onDisk) != want {
		t.Fatalf("written file %q, %v", onDisk, err)
	}

	if rec.fetched["local"] != 3 || rec.failures != 1 {
		t.Fatalf("file counters %+v failures=%d", rec.fetched, rec.failures)
	}
	for _, op := range []string{OpCollect, OpExtract, OpBuild, OpWrite, OpExport} {
		if got := rec.ops[op]; len(got) != 1 || !got[0] {
			t.Fatalf("operation %s observed %v", op, got)
		}
	}
	spans := tracer.Entries()
	if len(spans) != 4 || spans[0].Operation != OpCollect || spans[3].Operation != OpWrite {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if spans[0].RunID != res.RunID {
		t.Fatalf("span run id %q, result %q", spans[0].RunID, res.RunID)
	}
}

func TestRunRefusesToOverwrite(t *testing.T) {
	out := t.TempDir()
	p := &Pipeline{Now: fixedNow}
	req := Request{Source: staticSource{blobs: seriesBlobs()}, DataPath: "d", Format: manifest.FormatV1, Destination: DirDestination{Dir: out}}
	if _, err := p.Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Run(context.Background(), req); err == nil {
		t.Fatalf("expected second run with the same timestamp to fail")
	}
}

func TestRunWithoutDestination(t *testing.T) {
	p := &Pipeline{Now: fixedNow}
	res, err := p.Run(context.Background(), Request{Source: staticSource{blobs: seriesBlobs()}, DataPath: "d", Format: manifest.FormatV1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Location != "" || len(res.Manifest) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	items := res.Manifest[0].Series[0].Items
	if items[0].SOPInstanceUID != "1.2.3.1" || items[0].FileName != "d/a.dcm" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
}

func TestRunCloudToStore(t *testing.T) {
	a := testutil.Instance{StudyUID: "9", SeriesUID: "9.1", SOPUID: "9.1.1", SeriesNumber: 1, InstanceNumber: 1}
	store := blob.NewMockS3ForTests(map[string][]byte{
		"scans/":      nil,
		"scans/a.dcm": a.Bytes(),
	})
	p := &Pipeline{Now: fixedNow}
	res, err := p.Run(context.Background(), Request{
		Source:      source.CloudSource{Store: store, Prefix: "scans/"},
		DataPath:    "scans",
		Format:      manifest.FormatV1,
		Destination: StoreDestination{Store: store, Prefix: "presets"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Files != 1 || res.Location != "presets/preset_20240305_957.json" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.URL, "X-Amz-Signature") {
		t.Fatalf("expected signed url, got %q", res.URL)
	}
	info, rc, err := store.Get(context.Background(), res.Location)
	if err != nil {
		t.Fatalf("get uploaded manifest: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != string(res.Encoded) || info.ContentType != "application/json" {
		t.Fatalf("uploaded %q (%s)", body, info.ContentType)
	}
	want := `[{"study":{"study_instance_uid":"9","name":"9"},"series":[{"series_instance_uid":"9.1","items":[{"sop_instance_uid":"9.1.1","file_name":"scans/a.dcm"}]}]}]`
	if string(body) != want {
		t.Fatalf("manifest mismatch\n got: %s\nwant: %s", body, want)
	}
}

func TestRunCloudFailureWritesNothing(t *testing.T) {
	objects := map[string][]byte{}
	for _, k := range []string{"scans/a.dcm", "scans/b.dcm", "scans/c.dcm"} {
		objects[k] = testutil.Instance{StudyUID: "1", SeriesUID: "1.1", SOPUID: k}.Bytes()
	}
	store := blob.NewMockS3ForTests(objects, "scans/b.dcm")
	rec := newCountingRecorder()
	p := &Pipeline{Metrics: rec, Now: fixedNow}
	_, err := p.Run(context.Background(), Request{
		Source:      source.CloudSource{Store: store, Prefix: "scans/"},
		Format:      manifest.FormatV1,
		Destination: StoreDestination{Store: store, Prefix: "presets"},
	})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	written, err := store.List(context.Background(), "presets/")
	if err != nil || len(written) != 0 {
		t.Fatalf("expected no manifest, got %+v, %v", written, err)
	}
	if got := rec.ops[OpExport]; len(got) != 1 || got[0] {
		t.Fatalf("export observation %v", got)
	}
	if len(rec.ops[OpExtract]) != 0 {
		t.Fatalf("extract ran after a failed collect")
	}
}

func TestRunLeavesErrorReportingToCaller(t *testing.T) {
	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store := blob.NewMockS3ForTests(map[string][]byte{"p/a.dcm": []byte("a")}, "p/a.dcm")
	p := &Pipeline{Logger: logger}
	_, err := p.Run(context.Background(), Request{Source: source.CloudSource{Store: store, Prefix: "p/"}, Format: manifest.FormatV1})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("failure should only be returned, got logs %q", logs.String())
	}
}

func TestRunEmptyInput(t *testing.T) {
	out := t.TempDir()
	rec := newCountingRecorder()
	p := &Pipeline{Metrics: rec}
	_, err := p.Run(context.Background(), Request{Source: staticSource{}, Format: manifest.FormatV1, Destination: DirDestination{Dir: out}})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Fatalf("expected empty output dir, found %d entries", len(entries))
	}
	if got := rec.ops[OpExport]; len(got) != 1 || !got[0] {
		t.Fatalf("empty input should count as a successful export: %v", got)
	}
}

func TestRunValidatesRequest(t *testing.T) {
	p := &Pipeline{}
	if _, err := p.Run(context.Background(), Request{Format: manifest.FormatV1}); err == nil {
		t.Fatalf("expected missing source error")
	}
	if _, err := p.Run(context.Background(), Request{Source: staticSource{}, Format: manifest.Format(7)}); err == nil {
		t.Fatalf("expected format error")
	}
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (s blockingSource) Collect(ctx context.Context) ([]source.Blob, error) {
	close(s.started)
	select {
	case <-s.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (blockingSource) Kind() string { return "local" }

func TestRunRejectsConcurrentExport(t *testing.T) {
	p := &Pipeline{}
	src := blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), Request{Source: src, Format: manifest.FormatV1})
		done <- err
	}()
	<-src.started
	if !p.Busy() {
		t.Fatalf("pipeline should report busy")
	}
	if _, err := p.Run(context.Background(), Request{Source: staticSource{blobs: seriesBlobs()}, Format: manifest.FormatV1}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(src.release)
	if err := <-done; !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("first run: %v", err)
	}
	if p.Busy() {
		t.Fatalf("pipeline still busy")
	}
}

func TestStoreDestinationWithoutPresign(t *testing.T) {
	mem := blob.NewMemory()
	w, err := StoreDestination{Store: mem}.Write(context.Background(), "preset_x.json", []byte("[]"))
	if err != nil || w.Location != "preset_x.json" || w.URL != "" {
		t.Fatalf("write = %+v, %v", w, err)
	}
	if _, err := (StoreDestination{}).Write(context.Background(), "p.json", nil); err == nil {
		t.Fatalf("expected error without a store")
	}
}
