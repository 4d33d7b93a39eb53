package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	key, err := store.Write(ctx, "/thumbnails//j1.jpg", []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "thumbnails/j1.jpg" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(ctx, key)
	if err != nil || len(data) != 2 {
		t.Fatalf("read: %v %v", data, err)
	}
	if _, err := store.Read(ctx, "thumbnails/missing.jpg"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b.jpg", want: "a/b.jpg"},
		{in: "./a/./b.jpg", want: "a/b.jpg"},
		{in: `a\b.jpg`, want: "a/b.jpg"},
		{in: "../etc/passwd", wantErr: true},
		{in: "a/../../x", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q err %v", tc.in, got, err)
		}
	}
}
