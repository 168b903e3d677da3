package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns an *Store backed by an in-memory fake HTTP transport
// pre-populated with objects. Only the subset of S3 operations required by the
// blob.Store interface is implemented. GETs of keys listed in failKeys answer
// 403 AccessDenied, which the SDK does not retry.
func NewMockForTests(objects map[string][]byte, failKeys ...string) *Store {
	rt := newMockRoundTripper(failKeys...)
	for k, body := range objects {
		rt.state[k] = mockObj{body: body, contentType: "application/dicom"}
	}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}
}

// mockRoundTripper handles Head/Get/Put and ListObjectsV2 (single page).
type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]mockObj
	fail  map[string]struct{}
}

type mockObj struct {
	body        []byte
	contentType string
	meta        http.Header // x-amz-meta-* headers as sent
}

func (o mockObj) header() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Content-Type":   {o.contentType},
		"ETag":           {"\"etag123\""},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for k, v := range o.meta {
		h[k] = v
	}
	return h
}

func newMockRoundTripper(failKeys ...string) *mockRoundTripper {
	fail := make(map[string]struct{}, len(failKeys))
	for _, k := range failKeys {
		fail[k] = struct{}{}
	}
	return &mockRoundTripper{state: make(map[string]mockObj), fail: fail}
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2") {
		return m.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead:
		if st, ok := m.state[key]; ok {
			return respond(http.StatusOK, nil, st.header()), nil
		}
		return respond(http.StatusNotFound, nil, http.Header{}), nil
	case http.MethodPut:
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
		}
		if decoded := req.Header.Get("X-Amz-Decoded-Content-Length"); decoded != "" || strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if decoded == "0" {
				body = nil
			} else if dec, ok := decodeChunked(body); ok {
				body = dec
			}
		}
		if _, exists := m.state[key]; !exists {
			meta := http.Header{}
			for k, v := range req.Header {
				if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
					meta[k] = v
				}
			}
			m.state[key] = mockObj{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		}
		return respond(http.StatusOK, nil, http.Header{"ETag": {"\"etag\""}}), nil
	case http.MethodGet:
		if _, failing := m.fail[key]; failing {
			body := []byte("<?xml version=\"1.0\"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>")
			return respond(http.StatusForbidden, body, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		if st, ok := m.state[key]; ok {
			return respond(http.StatusOK, st.body, st.header()), nil
		}
		body := []byte("<?xml version=\"1.0\"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>")
		return respond(http.StatusNotFound, body, http.Header{"Content-Type": {"application/xml"}}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func (m *mockRoundTripper) list(prefix string) *http.Response {
	var keys []string
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?><ListBucketResult><IsTruncated>false</IsTruncated>")
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func respond(status int, body []byte, header http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

// decodeChunked decodes a single-chunk aws-chunked payload:
// <hex>[;chunk-signature=...]\r\n<body>\r\n0... The body is sliced by length so
// binary content containing CRLF survives.
func decodeChunked(b []byte) ([]byte, bool) {
	head, rest, ok := bytes.Cut(b, []byte("\r\n"))
	if !ok {
		return nil, false
	}
	sizeHex, _, _ := bytes.Cut(head, []byte(";"))
	n, err := strconv.ParseInt(string(sizeHex), 16, 64)
	if err != nil || n <= 0 || int64(len(rest)) < n+3 {
		return nil, false
	}
	if !bytes.HasPrefix(rest[n:], []byte("\r\n0")) {
		return nil, false
	}
	return rest[:n], true
}
