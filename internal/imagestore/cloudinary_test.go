package imagestore

import (
	"bytes"
	"context"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUploadAPI struct {
	mock.Mock
}

func (m *mockUploadAPI) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uploader.UploadResult), args.Error(1)
}

func (m *mockUploadAPI) Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uploader.DestroyResult), args.Error(1)
}

func TestCloudinaryStore_Add(t *testing.T) {
	client := new(mockUploadAPI)
	store := &CloudinaryStore{client: client}

	client.On("Upload", mock.MatchedBy(func(p uploader.UploadParams) bool {
		return p.Folder == "products" && p.PublicID != "" && p.Transformation == "c_fill,g_center,w_300,h_300"
	})).Return(&uploader.UploadResult{PublicID: "products/x"}, nil).Once()

	ref, err := store.Add(context.Background(), bytes.NewReader([]byte("img")), "products", 300, 300)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	client.AssertExpectations(t)

	client.On("Upload", mock.Anything).Return(&uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}, nil).Once()
	_, err = store.Add(context.Background(), bytes.NewReader([]byte("img")), "products", 300, 300)
	assert.ErrorContains(t, err, "Invalid image file")
}

func TestCloudinaryStore_Delete(t *testing.T) {
	client := new(mockUploadAPI)
	store := &CloudinaryStore{client: client}
	ctx := context.Background()

	client.On("Destroy", uploader.DestroyParams{PublicID: "products/a"}).Return(&uploader.DestroyResult{Result: "ok"}, nil).Once()
	assert.NoError(t, store.Delete(ctx, "a", "products", 300, 300))

	client.On("Destroy", uploader.DestroyParams{PublicID: "products/b"}).Return(&uploader.DestroyResult{Result: "not found"}, nil).Once()
	assert.ErrorIs(t, store.Delete(ctx, "b", "products", 300, 300), ErrArtifactNotFound)

	client.On("Destroy", uploader.DestroyParams{PublicID: "products/c"}).Return(nil, errors.New("network down")).Once()
	assert.ErrorContains(t, store.Delete(ctx, "c", "products", 300, 300), "network down")

	assert.ErrorIs(t, store.Delete(ctx, DefaultImage, "products", 300, 300), ErrProtectedArtifact)
	client.AssertExpectations(t)
}
