package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"dicompreset/internal/blob/core"
)

func TestGetReturnsIndependentCopies(t *testing.T) {
	s := New(nil)
	md := map[string]string{"k": "v"}
	if _, err := s.Put(context.Background(), "a", strings.NewReader("abc"), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["k"] = "changed"
	info, rc, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "abc" || info.Metadata["k"] != "v" {
		t.Fatalf("unexpected get %q %+v", b, info)
	}
	if info.ETag == "" {
		t.Fatalf("expected etag")
	}
	if _, err := s.Put(context.Background(), "a", strings.NewReader("again"), core.PutOptions{}); err == nil {
		t.Fatalf("expected write-once error")
	}
}

func TestListPrefix(t *testing.T) {
	s := New(nil)
	for _, k := range []string{"b/2", "a/1", "b/1"} {
		if _, err := s.Put(context.Background(), k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	infos, err := s.List(context.Background(), "b/")
	if err != nil || len(infos) != 2 || infos[0].Key != "b/1" || infos[1].Key != "b/2" {
		t.Fatalf("unexpected listing %+v, %v", infos, err)
	}
}

func TestSeededBucketKeepsFolderMarkers(t *testing.T) {
	seed := map[string][]byte{
		"study/":      nil,
		"study/a.dcm": []byte("dicm"),
	}
	s := New(seed)
	seed["study/a.dcm"][0] = 'X'

	infos, err := s.List(context.Background(), "study/")
	if err != nil || len(infos) != 2 {
		t.Fatalf("unexpected listing %+v, %v", infos, err)
	}
	if infos[0].Key != "study/" || infos[0].Size != 0 || infos[1].Size != 4 {
		t.Fatalf("unexpected sizes %+v", infos)
	}
	if infos[1].ContentType != "application/dicom" {
		t.Fatalf("content type %q", infos[1].ContentType)
	}
	_, rc, err := s.Get(context.Background(), "study/a.dcm")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "dicm" {
		t.Fatalf("seed was not copied: %q", b)
	}
	if _, err := s.Head(context.Background(), "study/missing.dcm"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestPresignUnsupported(t *testing.T) {
	if _, err := New(nil).PresignURL(context.Background(), "a", core.SignedURLOptions{}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
