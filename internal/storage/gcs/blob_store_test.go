package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s, err := New(&storage.Client{}, Config{Bucket: "b", Prefix: "/archive/"})
	require.NoError(t, err)
	require.Equal(t, "archive/raw/scbo/run.json", s.ObjectName("/raw/scbo/run.json"))

	bare, err := New(&storage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "raw/scbo/run.json", bare.ObjectName("raw/scbo/run.json"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	s, err := New(&storage.Client{}, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = s.PutObject(context.Background(), "", "application/json", nil)
	require.Error(t, err)
}
