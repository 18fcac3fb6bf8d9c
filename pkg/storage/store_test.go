package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func TestHashHelpers(t *testing.T) {
	hash := HashBytes([]byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hash)
	assert.True(t, HashesEqual("SHA256:"+hash, hash))
	assert.False(t, HashesEqual("", ""))
	assert.Equal(t, "sha256:"+hash, Locator(hash))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	locator, err := store.Put(ctx, []byte("readings"), ObjectMetadata{})
	require.NoError(t, err)

	obj, err := store.Get(ctx, locator, HashBytes([]byte("readings")))
	require.NoError(t, err)
	assert.True(t, obj.Verified)
	assert.Equal(t, []byte("readings"), obj.Data)

	obj, err = store.Get(ctx, locator, HashBytes([]byte("other")))
	require.NoError(t, err)
	assert.False(t, obj.Verified)

	_, err = store.Get(ctx, Locator(HashBytes([]byte("missing"))), "")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3StorePutSkipsExistingObject(t *testing.T) {
	client := new(mockS3)
	store := NewS3StoreWithClient(client, "evidence", "vr/")
	ctx := context.Background()
	hash := HashBytes([]byte("data"))

	client.On("HeadObject", ctx, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return *in.Key == "vr/"+hash+".blob"
	})).Return(&s3.HeadObjectOutput{}, nil)

	locator, err := store.Put(ctx, []byte("data"), ObjectMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+hash, locator)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestS3StorePutUploads(t *testing.T) {
	client := new(mockS3)
	store := NewS3StoreWithClient(client, "evidence", "")
	ctx := context.Background()

	client.On("HeadObject", ctx, mock.Anything).Return(nil, errors.New("not found"))
	client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "evidence" && *in.ContentType == "text/csv" && in.Metadata["filename"] == "flow.csv"
	})).Return(&s3.PutObjectOutput{}, nil)

	_, err := store.Put(ctx, []byte("a,b\n1,2\n"), ObjectMetadata{ContentType: "text/csv", FileName: "flow.csv"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestS3StoreGetReportsVerification(t *testing.T) {
	client := new(mockS3)
	store := NewS3StoreWithClient(client, "evidence", "")
	ctx := context.Background()

	client.On("GetObject", ctx, mock.Anything).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader([]byte("tampered"))),
	}, nil)

	obj, err := store.Get(ctx, Locator(HashBytes([]byte("original"))), HashBytes([]byte("original")))
	require.NoError(t, err)
	assert.False(t, obj.Verified)
	assert.Equal(t, []byte("tampered"), obj.Data)
}
