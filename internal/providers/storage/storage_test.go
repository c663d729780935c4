package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPutGetOverwrite(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Check(ctx))
	require.NoError(t, store.Put(ctx, "1/2025/INV-A.pdf", []byte("v1"), "application/pdf"))
	require.NoError(t, store.Put(ctx, "1/2025/INV-A.pdf", []byte("v2"), "application/pdf"))

	data, err := store.Get(ctx, "1/2025/INV-A.pdf")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = store.Get(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)

	target, err := store.path("../../etc/passwd")
	require.NoError(t, err)
	assert.Contains(t, target, root)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("x"), "text/plain"))
	data, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
	assert.Equal(t, 1, m.Puts())
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3PutGet(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	store := NewS3WithClient(client, "docs", nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "1/2025/INV-A.pdf", []byte("pdf"), "application/pdf"))
	data, err := store.Get(ctx, "1/2025/INV-A.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
