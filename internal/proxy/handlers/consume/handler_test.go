package consume

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/engine"
	"github.com/guided-traffic/body-consumer/internal/proxy/response"
	"github.com/guided-traffic/body-consumer/internal/storage"
)

// MockBlobStore is a mock implementation of BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, blob *body.Blob) (*storage.StoredBlob, error) {
	args := m.Called(ctx, blob)
	if stored := args.Get(0); stored != nil {
		return stored.(*storage.StoredBlob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBlobStore) Get(ctx context.Context, id uuid.UUID) (*body.Blob, error) {
	args := m.Called(ctx, id)
	if blob := args.Get(0); blob != nil {
		return blob.(*body.Blob), args.Error(1)
	}
	return nil, args.Error(1)
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func newTestHandler(store BlobStore, limit int64) *Handler {
	consumer := body.NewConsumer(body.NewDecoders(engine.New(nil)), testLogger())
	return NewHandler(consumer, store, limit, testLogger())
}

func serve(h *Handler, kind, contentType, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/consume/"+kind, strings.NewReader(payload))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req = mux.SetURLVars(req, map[string]string{"kind": kind})
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestHandle_Text(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "text", "text/plain", "caf\xc3\xa9 \xff")
	result := decodeResult(t, rec)

	assert.Equal(t, "text", result.Kind)
	assert.JSONEq(t, `"café �"`, string(result.Result))
}

func TestHandle_JSON(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "json", "application/json", `{"items":[1,"two"],"ok":true}`)
	result := decodeResult(t, rec)

	assert.Equal(t, "json", result.Kind)
	assert.JSONEq(t, `{"items":[1,"two"],"ok":true}`, string(result.Result))
}

func TestHandle_JSONLenientInput(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "json", "application/json", `{"a":1,"a":2,"big":1e400}`)
	result := decodeResult(t, rec)

	assert.JSONEq(t, `{"a":2,"big":null}`, string(result.Result))
}

func TestHandle_FormData(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "formData", "application/x-www-form-urlencoded", "a=1&b=x+y&a=2")
	result := decodeResult(t, rec)

	assert.Equal(t, "formData", result.Kind)
	assert.JSONEq(t, `[{"name":"a","value":"1"},{"name":"b","value":"x y"},{"name":"a","value":"2"}]`, string(result.Result))
}

func TestHandle_EmptyForm(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "formData", "application/x-www-form-urlencoded", "")
	result := decodeResult(t, rec)
	assert.JSONEq(t, `[]`, string(result.Result))
}

func TestHandle_ArrayBuffer(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "array-buffer", "", "\x00\x01\x02")
	result := decodeResult(t, rec)

	assert.Equal(t, "arrayBuffer", result.Kind)
	var buf ArrayBufferResult
	require.NoError(t, json.Unmarshal(result.Result, &buf))
	assert.Equal(t, 3, buf.ByteLength)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0, 1, 2}), buf.Base64)
}

func TestHandle_BlobWithoutStore(t *testing.T) {
	rec := serve(newTestHandler(nil, 0), "blob", "image/png", "PNG")
	result := decodeResult(t, rec)

	var blob BlobResult
	require.NoError(t, json.Unmarshal(result.Result, &blob))
	assert.Equal(t, "image/png", blob.Type)
	assert.Equal(t, 3, blob.Size)
	assert.Len(t, blob.Digest, 64)
	assert.Empty(t, blob.Location)
}

func TestHandle_BlobStored(t *testing.T) {
	store := &MockBlobStore{}
	store.On("Put", mock.Anything, mock.MatchedBy(func(b *body.Blob) bool {
		return string(b.Bytes()) == "PNG" && b.Type() == "image/png"
	})).Return(&storage.StoredBlob{Location: "s3://blobs/consumed/x", Sealed: true}, nil)

	rec := serve(newTestHandler(store, 0), "blob", "image/png", "PNG")
	result := decodeResult(t, rec)

	var blob BlobResult
	require.NoError(t, json.Unmarshal(result.Result, &blob))
	assert.Equal(t, "s3://blobs/consumed/x", blob.Location)
	assert.True(t, blob.Sealed)
	store.AssertExpectations(t)
}

func TestHandle_BlobStoreFailure(t *testing.T) {
	store := &MockBlobStore{}
	store.On("Put", mock.Anything, mock.Anything).Return(nil, errors.New("s3 down"))

	rec := serve(newTestHandler(store, 0), "blob", "", "data")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), response.CodeStorage)
}

func TestHandle_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		contentType string
		payload     string
		status      int
		code        string
	}{
		{"Invalid JSON", "json", "application/json", "{nope", http.StatusUnprocessableEntity, body.CodeForeignException},
		{"Multipart form", "formData", "multipart/form-data; boundary=x", "--x--", http.StatusUnsupportedMediaType, body.CodeInappropriateMIME},
		{"Form without type", "formData", "", "a=1", http.StatusUnsupportedMediaType, body.CodeInappropriateMIME},
		{"Unknown kind", "stream", "", "", http.StatusNotFound, response.CodeUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestHandler(nil, 0), tt.kind, tt.contentType, tt.payload)
			assert.Equal(t, tt.status, rec.Code)

			var doc response.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
			assert.Equal(t, tt.code, doc.Error.Code)
		})
	}
}

func TestHandle_BodyTooLarge(t *testing.T) {
	rec := serve(newTestHandler(nil, 4), "text", "", "12345")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), response.CodeBodyTooLarge)
}

func TestRender_Unrenderable(t *testing.T) {
	_, err := Render(body.ArrayBuffer{Handle: 42}, nil)
	assert.Error(t, err)
}

func fetch(h *Handler, id string) *httptest.ResponseRecorder {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/v1/blobs/"+id, nil), map[string]string{"id": id})
	rec := httptest.NewRecorder()
	h.Fetch(rec, req)
	return rec
}

func TestFetch(t *testing.T) {
	blob := body.NewBlob([]byte("%PDF-1.7"), "application/pdf")
	missing := uuid.New()

	store := &MockBlobStore{}
	store.On("Get", mock.Anything, blob.ID()).Return(blob, nil)
	store.On("Get", mock.Anything, missing).Return(nil, storage.ErrBlobNotFound)
	h := newTestHandler(store, 0)

	rec := fetch(h, blob.ID().String())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, blob.Digest(), rec.Header().Get("X-Blob-Digest"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, fetch(h, missing.String()).Code)
	assert.Equal(t, http.StatusBadRequest, fetch(h, "not-a-uuid").Code)
	store.AssertExpectations(t)
}

func TestFetch_StoreFailure(t *testing.T) {
	store := &MockBlobStore{}
	store.On("Get", mock.Anything, mock.Anything).Return(nil, storage.ErrSealed)

	rec := fetch(newTestHandler(store, 0), uuid.NewString())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), response.CodeStorage)
}

func TestFetch_WithoutStore(t *testing.T) {
	rec := fetch(newTestHandler(nil, 0), uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
