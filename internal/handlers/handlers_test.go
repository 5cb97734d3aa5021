package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/lecturebox/internal/logger"
	"github.com/maneesh/lecturebox/internal/models"
	"github.com/maneesh/lecturebox/internal/storage"
	"github.com/maneesh/lecturebox/internal/upload"
)

type errorBody struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

// lectures

type fakeLectureStore struct {
	lectures  map[int64]models.Lecture
	materials map[int64][]models.MaterialSummary
	month     []models.MonthLecture
	err       error
	gets      int
}

func (f *fakeLectureStore) ListLecturesByMonth(_ context.Context, _, _ int) ([]models.MonthLecture, error) {
	return f.month, f.err
}

func (f *fakeLectureStore) GetLecture(_ context.Context, id int64) (*models.Lecture, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.lectures[id]
	if !ok {
		return nil, fmt.Errorf("lecture %d: %w", id, storage.ErrNotFound)
	}
	return &l, nil
}

func (f *fakeLectureStore) ListLectureMaterials(_ context.Context, id int64) ([]models.MaterialSummary, error) {
	return f.materials[id], nil
}

type fakeCache struct {
	entries     map[int64]*models.LectureDetail
	invalidated []int64
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[int64]*models.LectureDetail{}}
}

func (f *fakeCache) GetLecture(_ context.Context, id int64) (*models.LectureDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.entries[id], nil
}

func (f *fakeCache) SetLecture(_ context.Context, l *models.LectureDetail) error {
	f.entries[l.ID] = l
	return nil
}

func (f *fakeCache) InvalidateLecture(_ context.Context, id int64) error {
	f.invalidated = append(f.invalidated, id)
	delete(f.entries, id)
	return nil
}

func TestByMonthRejectsOutOfRange(t *testing.T) {
	h := NewLectureHandler(&fakeLectureStore{}, nil, logger.Nop())

	tests := []struct {
		name  string
		year  string
		month string
		field string
	}{
		{"month too large", "2024", "13", "month"},
		{"month zero", "2024", "0", "month"},
		{"year too small", "1999", "5", "year"},
		{"year not a number", "abcd", "5", "year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"year": tt.year, "month": tt.month})
			rec := httptest.NewRecorder()

			h.ByMonth(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			require.Equal(t, "VALIDATION_ERROR", body.Error.Code)
			var details map[string]string
			require.NoError(t, json.Unmarshal(body.Error.Details, &details))
			require.Equal(t, tt.field, details["field"])
		})
	}
}

func TestByMonth(t *testing.T) {
	store := &fakeLectureStore{month: []models.MonthLecture{
		{Lecture: models.Lecture{ID: 1, Title: "Intro", Date: "2024-03-04"}, Materials: []string{"a.pdf", "b.pdf"}},
		{Lecture: models.Lecture{ID: 2, Title: "Loops", Date: "2024-03-11"}, Materials: []string{}},
	}}
	h := NewLectureHandler(store, nil, logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"year": "2024", "month": "3"})
	rec := httptest.NewRecorder()
	h.ByMonth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body MonthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Total)
	require.Equal(t, 2024, body.Year)
	require.Equal(t, 3, body.Month)
	require.Equal(t, []string{"a.pdf", "b.pdf"}, body.Data[0].Materials)
	require.Empty(t, body.Data[1].Materials)
}

func TestByMonthDatabaseErrorIsSanitized(t *testing.T) {
	store := &fakeLectureStore{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}
	h := NewLectureHandler(store, nil, logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"year": "2024", "month": "3"})
	rec := httptest.NewRecorder()
	h.ByMonth(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "INTERNAL_SERVER_ERROR", decodeError(t, rec).Error.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestByIDUsesCache(t *testing.T) {
	store := &fakeLectureStore{
		lectures: map[int64]models.Lecture{5: {ID: 5, Title: "Recursion"}},
		materials: map[int64][]models.MaterialSummary{
			5: {{ID: 9, Name: "slides.pdf", Size: "1 MB", Type: "application/pdf", Extension: "pdf"}},
		},
	}
	cache := newFakeCache()
	h := NewLectureHandler(store, cache, logger.Nop())

	for i := 0; i < 2; i++ {
		req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "5"})
		rec := httptest.NewRecorder()
		h.ByID(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data models.LectureDetail `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Recursion", body.Data.Title)
		require.Equal(t, "slides.pdf", body.Data.Materials[0].Name)
	}
	require.Equal(t, 1, store.gets)
}

func TestByIDCacheFailureFallsBackToStore(t *testing.T) {
	store := &fakeLectureStore{lectures: map[int64]models.Lecture{5: {ID: 5}}}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	h := NewLectureHandler(store, cache, logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "5"})
	rec := httptest.NewRecorder()
	h.ByID(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, store.gets)
}

func TestByIDErrors(t *testing.T) {
	h := NewLectureHandler(&fakeLectureStore{}, nil, logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()
	h.ByID(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Error.Code)

	req = withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "404"})
	rec = httptest.NewRecorder()
	h.ByID(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

// materials

type fakeMaterialList struct {
	listings []models.MaterialListing
}

func (f *fakeMaterialList) ListMaterials(context.Context) ([]models.MaterialListing, error) {
	return f.listings, nil
}

type fakeObjects struct {
	keys []string
}

func (f *fakeObjects) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://s3.test/bucket/" + key, nil
}

type fakeMaterials struct {
	inserted []models.Material
	err      error
}

func (f *fakeMaterials) InsertMaterial(_ context.Context, m *models.Material) error {
	if f.err != nil {
		return f.err
	}
	m.ID = int64(len(f.inserted) + 1)
	m.UploadDate = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	f.inserted = append(f.inserted, *m)
	return nil
}

type part struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...part) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.name))
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/materials/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newUploadHandler(objects *fakeObjects, materials *fakeMaterials, cache LectureCache, maxFiles int) *MaterialHandler {
	const maxSize = 1024
	svc := upload.NewService(objects, materials, upload.Options{MaxFileSize: maxSize, MaxFiles: maxFiles}, logger.Nop())
	return NewMaterialHandler(&fakeMaterialList{}, svc, cache, maxSize, maxFiles, logger.Nop())
}

func TestUploadCreated(t *testing.T) {
	objects := &fakeObjects{}
	materials := &fakeMaterials{}
	cache := newFakeCache()
	h := newUploadHandler(objects, materials, cache, 1)

	req := multipartRequest(t, map[string]string{"title": "Week 1", "lectureId": "3"},
		part{name: "notes.PDF", contentType: "application/pdf", data: []byte("%PDF-1.4")})
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data    upload.Result `json:"data"`
		Message string        `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1 file(s) uploaded successfully", body.Message)
	require.Equal(t, 1, body.Data.TotalUploaded)
	require.Equal(t, 0, body.Data.TotalFailed)
	require.Equal(t, "pdf", body.Data.UploadedFiles[0].Extension)
	require.Equal(t, "uploaduser", body.Data.UploadedFiles[0].UploadedBy)
	require.Len(t, objects.keys, 1)
	require.Equal(t, []int64{3}, cache.invalidated)
}

func TestUploadValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  []part
		code   string
	}{
		{
			name:   "unsupported type",
			fields: map[string]string{"title": "tool"},
			files:  []part{{name: "setup.exe", contentType: "application/x-msdownload", data: []byte("MZ")}},
			code:   "UNSUPPORTED_FILE_TYPE",
		},
		{
			name:   "blank title",
			fields: map[string]string{"title": "   "},
			files:  []part{{name: "a.pdf", contentType: "application/pdf", data: []byte("x")}},
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "no files",
			fields: map[string]string{"title": "t"},
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "too large",
			fields: map[string]string{"title": "t"},
			files:  []part{{name: "a.pdf", contentType: "application/pdf", data: make([]byte, 2048)}},
			code:   "FILE_TOO_LARGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := &fakeObjects{}
			materials := &fakeMaterials{}
			h := newUploadHandler(objects, materials, nil, 1)

			rec := httptest.NewRecorder()
			h.Upload(rec, multipartRequest(t, tt.fields, tt.files...))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.code, decodeError(t, rec).Error.Code)
			require.Empty(t, objects.keys)
			require.Empty(t, materials.inserted)
		})
	}
}

func TestUploadInsertFailure(t *testing.T) {
	objects := &fakeObjects{}
	materials := &fakeMaterials{err: errors.New("failed to insert material: deadlock")}
	h := newUploadHandler(objects, materials, nil, 1)

	req := multipartRequest(t, map[string]string{"title": "t"},
		part{name: "a.pdf", contentType: "application/pdf", data: []byte("x")})
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "UPLOAD_FAILED", body.Error.Code)
	var failed []upload.Failure
	require.NoError(t, json.Unmarshal(body.Error.Details, &failed))
	require.Len(t, failed, 1)
	require.Equal(t, "a.pdf", failed[0].FileName)
	require.Len(t, objects.keys, 1)
}

func TestUploadPartialSuccess(t *testing.T) {
	objects := &fakeObjects{}
	h := newUploadHandler(objects, &fakeMaterials{}, nil, 5)

	req := multipartRequest(t, map[string]string{"title": "mixed"},
		part{name: "good.pdf", contentType: "application/pdf", data: []byte("x")},
		part{name: "bad.exe", contentType: "application/x-msdownload", data: []byte("MZ")},
	)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data upload.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Data.TotalUploaded)
	require.Equal(t, 1, body.Data.TotalFailed)
	require.Equal(t, "bad.exe", body.Data.FailedFiles[0].FileName)
}

func TestListMaterialsIsIdempotent(t *testing.T) {
	title := "Intro"
	list := &fakeMaterialList{listings: []models.MaterialListing{
		{Material: models.Material{ID: 2, Name: "new.pdf"}, LectureTitle: &title},
		{Material: models.Material{ID: 1, Name: "old.pdf"}},
	}}
	h := NewMaterialHandler(list, nil, nil, 1024, 1, logger.Nop())

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/materials", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	require.Equal(t, bodies[0], bodies[1])

	var body ListResponse
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &body))
	require.Equal(t, 2, body.Total)
	require.Equal(t, int64(2), body.Data[0].ID)
	require.Equal(t, "Intro", *body.Data[0].LectureTitle)
	require.Nil(t, body.Data[1].LectureTitle)
}

// health

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(fakePinger{}, fakePinger{err: errors.New("redis down")}, true, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "OK", body.Status)
	require.Equal(t, "connected", body.Database)
	require.Equal(t, "configured", body.S3)
	require.Equal(t, "disconnected", body.Cache)
}

func TestHealthDatabaseDown(t *testing.T) {
	h := NewHealthHandler(fakePinger{err: errors.New("password authentication failed for user admin")}, nil, false, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ERROR", body.Status)
	require.Equal(t, "disconnected", body.Database)
	require.Equal(t, "not configured", body.S3)
	require.NotContains(t, rec.Body.String(), "password")
}

// share

type fakeSharer struct {
	issued  *models.ShareToken
	url     string
	err     error
	revoked []string
}

func (f *fakeSharer) Issue(context.Context, int64) (*models.ShareToken, error) {
	return f.issued, f.err
}

func (f *fakeSharer) Redeem(context.Context, string) (string, error) {
	return f.url, f.err
}

func (f *fakeSharer) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return f.err
}

func TestShareCreate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sharer := &fakeSharer{issued: &models.ShareToken{
		Token: "tok-1", MaterialID: 7, FileName: "notes.pdf", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}}
	h := NewShareHandler(sharer, "", logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodPost, "http://files.example.com/api/materials/7/share", nil), map[string]string{"id": "7"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data ShareLink `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "http://files.example.com/shared/tok-1", body.Data.ShareURL)
	require.Equal(t, int64(7), body.Data.FileID)
	require.Equal(t, "tok-1", body.Data.ShareToken)
}

func TestShareCreateUsesPublicBaseURL(t *testing.T) {
	sharer := &fakeSharer{issued: &models.ShareToken{Token: "tok-2", MaterialID: 1}}
	h := NewShareHandler(sharer, "https://lectures.example.com/", logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"shareUrl":"https://lectures.example.com/shared/tok-2"`)
}

func TestShareRedeemRedirects(t *testing.T) {
	h := NewShareHandler(&fakeSharer{url: "https://s3.test/presigned"}, "", logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodGet, "/shared/tok-1", nil), map[string]string{"token": "tok-1"})
	rec := httptest.NewRecorder()
	h.Redeem(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://s3.test/presigned", rec.Header().Get("Location"))
}

func TestShareRedeemUnexpectedErrorIsSanitized(t *testing.T) {
	h := NewShareHandler(&fakeSharer{err: errors.New("redis: connection pool timeout")}, "", logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodGet, "/shared/tok-1", nil), map[string]string{"token": "tok-1"})
	rec := httptest.NewRecorder()
	h.Redeem(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "redis")
}

func TestShareRevoke(t *testing.T) {
	sharer := &fakeSharer{}
	h := NewShareHandler(sharer, "", logger.Nop())

	req := withVars(httptest.NewRequest(http.MethodDelete, "/api/shares/tok-1", nil), map[string]string{"token": "tok-1"})
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"tok-1"}, sharer.revoked)
}
