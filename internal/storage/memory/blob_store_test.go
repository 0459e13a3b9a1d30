package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"a":1}`)
	uri, err := store.PutObject(context.Background(), "raw/scbo/run.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://raw/scbo/run.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'
	stored, contentType, ok := store.Object("raw/scbo/run.json")
	if !ok {
		t.Fatal("expected object to exist")
	}
	if string(stored) != `{"a":1}` {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d", store.Len())
	}
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	if _, _, ok := NewBlobStore().Object("nope"); ok {
		t.Fatal("expected missing object")
	}
}
