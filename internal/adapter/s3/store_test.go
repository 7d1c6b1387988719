package s3_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"liveworkshop/backend/internal/adapter/s3"
	"liveworkshop/backend/internal/ingest"
)

type MockAPI struct{ mock.Mock }

func (m *MockAPI) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awss3.ListObjectsV2Output), args.Error(1)
}

func (m *MockAPI) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	args := m.Called(ctx, aws.ToString(in.Key))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awss3.GetObjectOutput), args.Error(1)
}

func object(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size)}
}

func body(s string) *awss3.GetObjectOutput {
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s))}
}

func newPresigner() *awss3.PresignClient {
	client := awss3.New(awss3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
		}),
	})
	return awss3.NewPresignClient(client)
}

func TestStore_PresignUpload(t *testing.T) {
	store := s3.NewStore(new(MockAPI), newPresigner(), ingest.NewFileArea(t.TempDir()),
		s3.Options{Bucket: "workshop", PresignTTL: 10 * time.Minute})

	up, err := store.PresignUpload(context.Background(), "sessA", "../deck.pdf")
	require.NoError(t, err)

	assert.Equal(t, "PUT", up.Method)
	assert.Equal(t, "sessions/sessA/deck.pdf", up.Key)
	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	assert.Equal(t, "/workshop/sessions/sessA/deck.pdf", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), up.ExpiresAt, time.Minute)
}

func TestStore_PresignUpload_InvalidInput(t *testing.T) {
	store := s3.NewStore(new(MockAPI), newPresigner(), ingest.NewFileArea(t.TempDir()), s3.Options{Bucket: "workshop"})

	_, err := store.PresignUpload(context.Background(), "a/b", "deck.pdf")
	assert.ErrorIs(t, err, ingest.ErrInvalidSessionID)

	_, err = store.PresignUpload(context.Background(), "sessA", "..")
	assert.ErrorIs(t, err, ingest.ErrInvalidFileName)
}

func TestStore_SyncSession(t *testing.T) {
	area := ingest.NewFileArea(t.TempDir())
	_, err := area.SaveUpload("sessA", "same.txt", strings.NewReader("12345"), 0)
	require.NoError(t, err)

	api := new(MockAPI)
	api.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *awss3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "sessions/sessA/" && aws.ToString(in.Bucket) == "workshop"
	})).Return(&awss3.ListObjectsV2Output{Contents: []types.Object{
		object("sessions/sessA/", 0),
		object("sessions/sessA/notes.md", 7),
		object("sessions/sessA/same.txt", 5),
		object("sessions/sessA/nested/skip.txt", 3),
	}}, nil)
	api.On("GetObject", mock.Anything, "sessions/sessA/notes.md").Return(body("# Notes"), nil)

	store := s3.NewStore(api, newPresigner(), area, s3.Options{Bucket: "workshop"})
	n, err := store.SyncSession(context.Background(), "sessA")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dir, err := area.UploadsDir("sessA")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes", string(got))
	api.AssertNotCalled(t, "GetObject", mock.Anything, "sessions/sessA/same.txt")
}

func TestStore_SyncSession_Errors(t *testing.T) {
	t.Run("List fails", func(t *testing.T) {
		api := new(MockAPI)
		api.On("ListObjectsV2", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

		store := s3.NewStore(api, newPresigner(), ingest.NewFileArea(t.TempDir()), s3.Options{Bucket: "workshop"})
		_, err := store.SyncSession(context.Background(), "sessA")
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("Download fails", func(t *testing.T) {
		api := new(MockAPI)
		api.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&awss3.ListObjectsV2Output{
			Contents: []types.Object{object("sessions/sessA/a.txt", 1)},
		}, nil)
		api.On("GetObject", mock.Anything, "sessions/sessA/a.txt").Return(nil, errors.New("no such key"))

		store := s3.NewStore(api, newPresigner(), ingest.NewFileArea(t.TempDir()), s3.Options{Bucket: "workshop"})
		n, err := store.SyncSession(context.Background(), "sessA")
		assert.Error(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestNew_Disabled(t *testing.T) {
	_, err := s3.New(context.Background(), ingest.NewFileArea(t.TempDir()), s3.Options{})
	assert.ErrorIs(t, err, s3.ErrDisabled)
}
