package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
)

type fakeBucket struct {
	objects map[string]string
	keys    []string
}

func (f *fakeBucket) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Bucket+"/"+*in.Key)
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestLibrary_Index(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{
		"queries/index.json": `[{"name":"Customers","description":"Active customers","fileName":"customers.sql"}]`,
	}}
	lib := New(bucket, "suiteql", "queries/", log.Discard())

	entries, err := lib.Index(context.Background())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(entries) != 1 || entries[0].FileName != "customers.sql" || entries[0].Name != "Customers" {
		t.Errorf("unexpected entries %+v", entries)
	}
	if bucket.keys[0] != "suiteql/queries/index.json" {
		t.Errorf("unexpected key %s", bucket.keys[0])
	}
}

func TestLibrary_Load(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]string{"queries/customers.sql": "SELECT * FROM Customer"}}
	lib := New(bucket, "suiteql", "queries/", log.Discard())

	sql, err := lib.Load(context.Background(), "customers.sql")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sql != "SELECT * FROM Customer" {
		t.Errorf("unexpected sql %q", sql)
	}
}

func TestLibrary_LoadRejectsPaths(t *testing.T) {
	lib := New(&fakeBucket{}, "suiteql", "queries/", log.Discard())

	for _, name := range []string{"", "../secret", "a/b.sql"} {
		if _, err := lib.Load(context.Background(), name); !qerrors.IsCode(err, qerrors.ErrCodeRequestInvalid) {
			t.Errorf("Load(%q): expected ErrCodeRequestInvalid, got %v", name, err)
		}
	}
}

func TestLibrary_Errors(t *testing.T) {
	tests := []struct {
		name    string
		objects map[string]string
	}{
		{"missing index", map[string]string{}},
		{"bad json", map[string]string{"queries/index.json": "<html>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := New(&fakeBucket{objects: tt.objects}, "suiteql", "queries/", log.Discard())
			if _, err := lib.Index(context.Background()); !qerrors.IsCode(err, qerrors.ErrCodeRemoteFetch) {
				t.Errorf("expected ErrCodeRemoteFetch, got %v", err)
			}
		})
	}
}
