package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentals/server/internal/auth"
	"rentals/server/internal/database"
	"rentals/server/internal/events"
	"rentals/server/internal/filter"
	"rentals/server/internal/models"
	"rentals/server/internal/queue"
	"rentals/server/internal/storage"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	return m.Called(ctx, routingKey, payload).Error(0)
}

func (m *MockPublisher) Close() error {
	return nil
}

type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int

	// onMiss runs after a lookup that found nothing
	onMiss func()
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	v, ok := c.items[key]
	if ok {
		c.hits++
	}
	onMiss := c.onMiss
	c.mu.Unlock()

	if !ok && onMiss != nil {
		onMiss()
	}
	return v, ok
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *memCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *memCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string][]byte)
	return nil
}

func (c *memCache) Close() error { return nil }

type fakeImages struct{}

func (fakeImages) Upload(_ context.Context, propertyID string, r io.Reader, filename, _ string, _ int64) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return "http://images.test/" + propertyID + "/" + filename, nil
}

func (fakeImages) Delete(context.Context, string) error { return nil }

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Upload(ctx context.Context, propertyID string, r io.Reader, filename, contentType string, size int64) (string, error) {
	args := m.Called(ctx, propertyID, r, filename, contentType, size)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Delete(ctx context.Context, imageURL string) error {
	return m.Called(ctx, imageURL).Error(0)
}

type testEnv struct {
	router  *gin.Engine
	handler *Handler
	db      *database.Database
	tokens  *auth.TokenService
	events  *MockPublisher
	cache   *memCache
	queue   *queue.ListingQueue
}

func setupTestEnv(t *testing.T, images storage.ImageStore) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(gdb))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	db := database.Wrap(gdb, logger)
	t.Cleanup(func() { _ = db.Close() })

	compiler, err := filter.NewCompiler()
	require.NoError(t, err)

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env := &testEnv{
		db:     db,
		tokens: auth.NewTokenService("test-secret", time.Hour),
		events: pub,
		cache:  &memCache{items: make(map[string][]byte)},
		queue:  queue.NewListingQueue(10, logger),
	}

	deps := Deps{
		DB:       db,
		Tokens:   env.tokens,
		Compiler: compiler,
		Cache:    env.cache,
		Events:   pub,
		Queue:    env.queue,
		Images:   images,
	}

	env.handler = NewHandler(deps, logger)
	env.router = gin.New()
	SetupRoutes(env.router, env.handler)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) user(t *testing.T, email string, role models.Role, approved bool) (*models.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)

	u := &models.User{Email: email, Name: email, Role: role, IsApproved: approved, PasswordHash: hash}
	require.NoError(t, e.db.CreateUser(u))

	token, _, err := e.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) listing(t *testing.T, owner *models.User, p models.Property) *models.Property {
	t.Helper()
	p.OwnerID = owner.ID
	if p.Area == 0 {
		p.Area = 500
	}
	require.NoError(t, e.db.CreateProperty(&p))
	return &p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func propertyIDs(properties []models.Property) []string {
	ids := make([]string, 0, len(properties))
	for _, p := range properties {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"email": "Renter@Example.com", "password": "password123", "name": "Rita", "role": "renter",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[TokenResponse](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "renter@example.com", resp.User.Email)
	assert.True(t, resp.User.IsApproved)
	assert.NotContains(t, w.Body.String(), "password")

	tests := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"admin self-registration", gin.H{"email": "a@example.com", "password": "password123", "name": "A", "role": "admin"}, http.StatusBadRequest},
		{"short password", gin.H{"email": "b@example.com", "password": "short", "name": "B", "role": "renter"}, http.StatusBadRequest},
		{"overlong password", gin.H{"email": "e@example.com", "password": strings.Repeat("p", 73), "name": "E", "role": "renter"}, http.StatusBadRequest},
		{"invalid email", gin.H{"email": "nope", "password": "password123", "name": "C", "role": "renter"}, http.StatusBadRequest},
		{"duplicate email", gin.H{"email": "renter@example.com", "password": "password123", "name": "D", "role": "owner"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/register", tt.body, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	t.Run("owners start unapproved", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
			"email": "owner@example.com", "password": "password123", "name": "Olga", "role": "owner",
		}, "")
		require.Equal(t, http.StatusCreated, w.Code)
		assert.False(t, decode[TokenResponse](t, w).User.IsApproved)
	})

	t.Run("login", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "RENTER@example.com", "password": "password123"}, "")
		require.Equal(t, http.StatusOK, w.Code)
		token := decode[TokenResponse](t, w).Token

		w = env.do(t, http.MethodGet, "/api/me", nil, token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Rita", decode[models.User](t, w).Name)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "renter@example.com", "password": "password999"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "ghost@example.com", "password": "password123"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejected owner cannot log in", func(t *testing.T) {
		owner, err := env.db.GetUserByEmail("owner@example.com")
		require.NoError(t, err)
		_, err = env.db.RejectOwner(owner.ID)
		require.NoError(t, err)

		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "owner@example.com", "password": "password123"}, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, token := env.user(t, "r@example.com", models.RoleRenter, true)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/me", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/me", nil, "garbage").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/me", nil, token).Code)

	// Renters cannot reach owner or admin routes
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/me/properties", nil, token).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/admin/users", nil, token).Code)

	ghost := &models.User{ID: "ghost", Role: models.RoleRenter}
	ghostToken, _, err := env.tokens.Issue(ghost)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/me", nil, ghostToken).Code)
}

func seedListings(t *testing.T, env *testEnv) {
	t.Helper()
	owner, _ := env.user(t, "seed-owner@example.com", models.RoleOwner, true)

	env.listing(t, owner, models.Property{
		ID: "1", Title: "Studio", Price: 1200, Location: "Boston", PropertyType: models.PropertyTypeStudio,
		Bedrooms: 1, Amenities: []string{"WiFi", "Parking"},
	})
	env.listing(t, owner, models.Property{
		ID: "2", Title: "Apartment", Price: 2500, Location: "New York, NY", PropertyType: models.PropertyTypeApartment,
		Bedrooms: 2, Amenities: []string{"WiFi", "Gym"},
	})
	env.listing(t, owner, models.Property{
		ID: "3", Title: "House", Price: 3500, Location: "California", PropertyType: models.PropertyTypeHouse,
		Bedrooms: 4, Amenities: []string{"Parking", "Garden"},
	})
}

func TestGetProperties(t *testing.T) {
	env := setupTestEnv(t, nil)
	seedListings(t, env)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"no filters", "", []string{"1", "2", "3"}},
		{"location is case-insensitive", "?location=new%20york", []string{"2"}},
		{"type", "?type=house", []string{"3"}},
		{"price range inclusive", "?min_price=1200&max_price=2500", []string{"1", "2"}},
		{"inverted price range", "?min_price=3000&max_price=2000", []string{}},
		{"min bedrooms", "?bedrooms=2", []string{"2", "3"}},
		{"amenities comma separated", "?amenities=WiFi,Gym", []string{"2"}},
		{"amenities repeated", "?amenities=Parking&amenities=Garden", []string{"3"}},
		{"no match", "?location=Chicago", []string{}},
		{"expression", "?expr=property.price%20%3C%202000", []string{"1"}},
		{"expression and filter", "?type=apartment&expr=property.bedrooms%20%3E%3D%202", []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/properties"+tt.query, nil, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, propertyIDs(decode[[]models.Property](t, w)))
		})
	}
}

func TestGetPropertiesRejectsMalformedQuery(t *testing.T) {
	env := setupTestEnv(t, nil)

	queries := []string{
		"?min_price=abc",
		"?max_price=-5",
		"?bedrooms=two",
		"?type=castle",
		"?near_lat=42.3",
		"?near_lat=42.3&near_lng=-71&radius_km=0",
		"?near_lat=95&near_lng=-71&radius_km=5",
		"?expr=property.price%20%3E",
		"?expr=1%20%2B%201",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/properties"+q, nil, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestGetPropertiesNear(t *testing.T) {
	env := setupTestEnv(t, nil)
	owner, _ := env.user(t, "o@example.com", models.RoleOwner, true)

	lat, lon := 42.3601, -71.0589
	env.listing(t, owner, models.Property{ID: "boston", Title: "B", Price: 1000, Location: "Boston", PropertyType: models.PropertyTypeRoom, Latitude: &lat, Longitude: &lon})
	env.listing(t, owner, models.Property{ID: "unknown", Title: "U", Price: 1000, Location: "Somewhere", PropertyType: models.PropertyTypeRoom})

	w := env.do(t, http.MethodGet, "/api/properties?near_lat=42.35&near_lng=-71.06&radius_km=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"boston"}, propertyIDs(decode[[]models.Property](t, w)))
}

func TestGetPropertiesCache(t *testing.T) {
	env := setupTestEnv(t, nil)
	seedListings(t, env)
	_, token := env.user(t, "owner@example.com", models.RoleOwner, true)

	first := env.do(t, http.MethodGet, "/api/properties?type=studio", nil, "")
	require.Equal(t, http.StatusOK, first.Code)
	second := env.do(t, http.MethodGet, "/api/properties?type=studio", nil, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, env.cache.hits)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := env.do(t, http.MethodPost, "/api/properties", gin.H{
		"title": "New studio", "price": 900, "area": 300, "property_type": "studio", "location": "Boston",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	third := env.do(t, http.MethodGet, "/api/properties?type=studio", nil, "")
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, 1, env.cache.hits)
	assert.Len(t, decode[[]models.Property](t, third), 2)
}

func TestGetProperty(t *testing.T) {
	env := setupTestEnv(t, nil)
	seedListings(t, env)

	w := env.do(t, http.MethodGet, "/api/properties/2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Apartment", decode[models.Property](t, w).Title)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/properties/404", nil, "").Code)
}

func TestCreateProperty(t *testing.T) {
	env := setupTestEnv(t, nil)
	owner, token := env.user(t, "owner@example.com", models.RoleOwner, true)
	_, pendingToken := env.user(t, "pending@example.com", models.RoleOwner, false)

	valid := gin.H{
		"title":         "Loft",
		"description":   "Bright loft",
		"price":         2100,
		"location":      "Boston, MA",
		"property_type": "apartment",
		"bedrooms":      2,
		"bathrooms":     1,
		"area":          900,
		"amenities":     []string{"WiFi", "Balcony"},
		"owner_id":      "someone-else",
	}

	t.Run("pending owner", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/properties", valid, pendingToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("approved owner", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/properties", valid, token)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		p := decode[models.Property](t, w)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, owner.ID, p.OwnerID)
		assert.Equal(t, owner.Email, p.OwnerEmail)
		assert.True(t, p.IsAvailable)
		assert.Equal(t, []string{"WiFi", "Balcony"}, p.Amenities)
		assert.NotNil(t, p.Images)

		env.events.AssertCalled(t, "Publish", mock.Anything, events.PropertyCreated, mock.Anything)
		assert.Equal(t, 1, env.queue.Len())

		w = env.do(t, http.MethodGet, "/api/me/properties", nil, token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Property](t, w), 1)
	})

	invalid := []struct {
		name  string
		field string
		value interface{}
	}{
		{"empty title", "title", "  "},
		{"zero price", "price", 0},
		{"zero area", "area", 0},
		{"negative bedrooms", "bedrooms", -1},
		{"unknown type", "property_type", "castle"},
		{"unknown amenity", "amenities", []string{"WiFi", "Helipad"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			body := gin.H{}
			for k, v := range valid {
				body[k] = v
			}
			body[tt.field] = tt.value

			w := env.do(t, http.MethodPost, "/api/properties", body, token)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUpdateAndDeleteProperty(t *testing.T) {
	env := setupTestEnv(t, nil)
	owner, ownerToken := env.user(t, "owner@example.com", models.RoleOwner, true)
	_, otherToken := env.user(t, "other@example.com", models.RoleOwner, true)
	_, adminToken := env.user(t, "admin@example.com", models.RoleAdmin, true)

	p := env.listing(t, owner, models.Property{Title: "Room", Price: 700, Location: "Austin", PropertyType: models.PropertyTypeRoom, IsAvailable: true})

	t.Run("other owner cannot update", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/properties/"+p.ID, gin.H{"price": 1}, otherToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("partial update", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/properties/"+p.ID, gin.H{"price": 750, "is_available": false}, ownerToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		updated := decode[models.Property](t, w)
		assert.Equal(t, 750, updated.Price)
		assert.False(t, updated.IsAvailable)
		assert.Equal(t, "Room", updated.Title)
		env.events.AssertCalled(t, "Publish", mock.Anything, events.PropertyUpdated, mock.Anything)
	})

	t.Run("update validation", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/properties/"+p.ID, gin.H{"price": -5}, ownerToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other owner cannot delete", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/api/properties/"+p.ID, nil, otherToken).Code)
	})

	t.Run("admin deletes", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/properties/"+p.ID, nil, adminToken).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/properties/"+p.ID, nil, "").Code)
		env.events.AssertCalled(t, "Publish", mock.Anything, events.PropertyDeleted, mock.Anything)
	})

	t.Run("missing listing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/properties/"+p.ID, nil, ownerToken).Code)
	})
}

func uploadRequest(t *testing.T, path, token, contentType string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="photo.jpg"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadImage(t *testing.T) {
	t.Run("storage configured", func(t *testing.T) {
		env := setupTestEnv(t, fakeImages{})
		owner, token := env.user(t, "owner@example.com", models.RoleOwner, true)
		p := env.listing(t, owner, models.Property{Title: "Room", Price: 700, PropertyType: models.PropertyTypeRoom})

		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, uploadRequest(t, "/api/properties/"+p.ID+"/images", token, "image/jpeg"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		updated := decode[models.Property](t, w)
		assert.Equal(t, []string{"http://images.test/" + p.ID + "/photo.jpg"}, updated.Images)
		assert.Equal(t, updated.Images[0], updated.CoverImage())

		w = httptest.NewRecorder()
		env.router.ServeHTTP(w, uploadRequest(t, "/api/properties/"+p.ID+"/images", token, "text/plain"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("storage not configured", func(t *testing.T) {
		env := setupTestEnv(t, nil)
		owner, token := env.user(t, "owner@example.com", models.RoleOwner, true)
		p := env.listing(t, owner, models.Property{Title: "Room", Price: 700, PropertyType: models.PropertyTypeRoom})

		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, uploadRequest(t, "/api/properties/"+p.ID+"/images", token, "image/png"))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestBookingWorkflow(t *testing.T) {
	env := setupTestEnv(t, nil)
	owner, ownerToken := env.user(t, "owner@example.com", models.RoleOwner, true)
	_, otherOwnerToken := env.user(t, "other@example.com", models.RoleOwner, true)
	renter, renterToken := env.user(t, "renter@example.com", models.RoleRenter, true)

	p := env.listing(t, owner, models.Property{Title: "Flat", Price: 1500, PropertyType: models.PropertyTypeApartment, IsAvailable: true})
	taken := env.listing(t, owner, models.Property{Title: "Taken", Price: 1500, PropertyType: models.PropertyTypeApartment})

	t.Run("owners cannot book", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/bookings", gin.H{"property_id": p.ID}, ownerToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unavailable property", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/bookings", gin.H{"property_id": taken.ID}, renterToken)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown property", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/bookings", gin.H{"property_id": "nope"}, renterToken)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	w := env.do(t, http.MethodPost, "/api/bookings", gin.H{"property_id": p.ID, "message": "  I'd like a viewing  "}, renterToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booking := decode[models.Booking](t, w)
	assert.Equal(t, models.BookingPending, booking.Status)
	assert.Equal(t, renter.ID, booking.RenterID)
	assert.Equal(t, renter.Email, booking.RenterEmail)
	assert.Equal(t, "I'd like a viewing", booking.Message)
	env.events.AssertCalled(t, "Publish", mock.Anything, events.BookingCreated, mock.Anything)

	t.Run("listed for both parties", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/bookings", nil, renterToken)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Booking](t, w), 1)

		w = env.do(t, http.MethodGet, "/api/bookings?status=pending", nil, ownerToken)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Booking](t, w), 1)

		w = env.do(t, http.MethodGet, "/api/bookings", nil, otherOwnerToken)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]models.Booking](t, w))

		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/bookings?status=maybe", nil, ownerToken).Code)
	})

	t.Run("status transitions", func(t *testing.T) {
		path := "/api/bookings/" + booking.ID

		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, path, gin.H{"status": "maybe"}, ownerToken).Code)
		assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPatch, path, gin.H{"status": "pending"}, ownerToken).Code)
		assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPatch, path, gin.H{"status": "approved"}, otherOwnerToken).Code)

		w := env.do(t, http.MethodPatch, path, gin.H{"status": "approved"}, ownerToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.BookingApproved, decode[models.Booking](t, w).Status)
		env.events.AssertCalled(t, "Publish", mock.Anything, events.BookingStatusChange, mock.Anything)

		assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPatch, path, gin.H{"status": "rejected"}, ownerToken).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/api/bookings/nope", gin.H{"status": "rejected"}, ownerToken).Code)
	})
}

func TestMessaging(t *testing.T) {
	env := setupTestEnv(t, nil)
	owner, ownerToken := env.user(t, "owner@example.com", models.RoleOwner, true)
	renter, renterToken := env.user(t, "renter@example.com", models.RoleRenter, true)
	p := env.listing(t, owner, models.Property{Title: "Flat", Price: 1500, PropertyType: models.PropertyTypeApartment})

	w := env.do(t, http.MethodPost, "/api/messages", gin.H{"receiver_id": owner.ID, "content": "Is it available?", "property_id": p.ID}, renterToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, renter.Name, decode[models.Message](t, w).SenderName)

	w = env.do(t, http.MethodPost, "/api/messages", gin.H{"receiver_id": renter.ID, "content": "Yes it is"}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code)

	invalid := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"blank content", gin.H{"receiver_id": owner.ID, "content": "   "}, http.StatusBadRequest},
		{"to self", gin.H{"receiver_id": renter.ID, "content": "hi"}, http.StatusBadRequest},
		{"unknown receiver", gin.H{"receiver_id": "ghost", "content": "hi"}, http.StatusNotFound},
		{"unknown property", gin.H{"receiver_id": owner.ID, "content": "hi", "property_id": "ghost"}, http.StatusNotFound},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, env.do(t, http.MethodPost, "/api/messages", tt.body, renterToken).Code)
		})
	}

	w = env.do(t, http.MethodGet, "/api/messages", nil, renterToken)
	require.Equal(t, http.StatusOK, w.Code)
	conversations := decode[[]models.Conversation](t, w)
	require.Len(t, conversations, 1)
	assert.Equal(t, owner.ID, conversations[0].CounterpartID)
	assert.Equal(t, "Yes it is", conversations[0].LastMessage.Content)

	w = env.do(t, http.MethodGet, "/api/messages/"+renter.ID, nil, ownerToken)
	require.Equal(t, http.StatusOK, w.Code)
	thread := decode[[]models.Message](t, w)
	require.Len(t, thread, 2)
	assert.Equal(t, "Is it available?", thread[0].Content)
}

func TestAdmin(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, adminToken := env.user(t, "admin@example.com", models.RoleAdmin, true)
	pending, pendingToken := env.user(t, "pending@example.com", models.RoleOwner, false)
	doomed, _ := env.user(t, "doomed@example.com", models.RoleOwner, false)
	_, _ = env.user(t, "renter@example.com", models.RoleRenter, true)

	w := env.do(t, http.MethodGet, "/api/admin/owners/pending", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.User](t, w), 2)

	w = env.do(t, http.MethodGet, "/api/admin/users?role=renter", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.User](t, w), 1)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/admin/users?role=king", nil, adminToken).Code)

	// Not approved yet
	listing := gin.H{"title": "Loft", "price": 1000, "area": 400, "property_type": "studio"}
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/properties", listing, pendingToken).Code)

	w = env.do(t, http.MethodPost, "/api/admin/owners/"+pending.ID+"/approve", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.User](t, w).IsApproved)
	env.events.AssertCalled(t, "Publish", mock.Anything, events.OwnerApproved, mock.Anything)

	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/properties", listing, pendingToken).Code)

	w = env.do(t, http.MethodPost, "/api/admin/owners/"+doomed.ID+"/reject", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.UserStatusRejected, decode[models.User](t, w).Status)
	env.events.AssertCalled(t, "Publish", mock.Anything, events.OwnerRejected, mock.Anything)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/admin/owners/ghost/approve", nil, adminToken).Code)

	w = env.do(t, http.MethodGet, "/api/admin/owners/pending", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.User](t, w))

	w = env.do(t, http.MethodGet, "/api/admin/stats", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.PropertyStats](t, w)
	assert.Equal(t, int64(4), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalProperties)

	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/api/admin/update-coordinates", nil, adminToken).Code)
}

func TestSavedSearches(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, token := env.user(t, "renter@example.com", models.RoleRenter, true)
	_, otherToken := env.user(t, "other@example.com", models.RoleRenter, true)

	invalid := []gin.H{
		{"criteria": gin.H{}},
		{"name": "bad type", "criteria": gin.H{"property_type": "castle"}},
		{"name": "bad bound", "criteria": gin.H{"min_price": -1}},
		{"name": "bad near", "criteria": gin.H{"near": gin.H{"latitude": 10, "longitude": 10, "radius_km": 0}}},
		{"name": "bad expr", "expression": "property.price >"},
	}
	for _, body := range invalid {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/searches", body, token).Code, body)
	}

	w := env.do(t, http.MethodPost, "/api/searches", gin.H{
		"name":             "Boston under 2k",
		"criteria":         gin.H{"location": "boston", "max_price": 2000, "amenities": []string{"WiFi"}},
		"expression":       "property.bedrooms >= 1",
		"telegram_chat_id": "12345",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	search := decode[models.SavedSearch](t, w)
	require.NotNil(t, search.Criteria.MaxPrice)
	assert.Equal(t, 2000, *search.Criteria.MaxPrice)

	w = env.do(t, http.MethodGet, "/api/searches", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.SavedSearch](t, w), 1)

	w = env.do(t, http.MethodGet, "/api/searches", nil, otherToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.SavedSearch](t, w))

	path := "/api/searches/" + search.ID
	update := gin.H{"name": "Boston", "criteria": gin.H{"location": "boston"}}
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, path, update, otherToken).Code)

	w = env.do(t, http.MethodPut, path, update, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.SavedSearch](t, w)
	assert.Equal(t, "Boston", updated.Name)
	assert.Nil(t, updated.Criteria.MaxPrice)
	assert.Empty(t, updated.Expression)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil, otherToken).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil, token).Code)
}

func TestAmenitiesAndHealth(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/amenities", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[[]string](t, w), "Pet Friendly")

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil, "").Code)
}

func TestListingCacheSkipsResponsesReadBeforeAWrite(t *testing.T) {
	env := setupTestEnv(t, nil)
	seedListings(t, env)

	// A listing write lands while the request is loading from the database
	env.cache.onMiss = env.handler.bumpListingGeneration
	w := env.do(t, http.MethodGet, "/api/properties", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, env.cache.len())

	env.cache.onMiss = nil
	w = env.do(t, http.MethodGet, "/api/properties", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.cache.len())
}

func TestDeletePropertyRemovesImages(t *testing.T) {
	images := &MockImageStore{}
	env := setupTestEnv(t, images)
	owner, token := env.user(t, "owner@example.com", models.RoleOwner, true)
	p := env.listing(t, owner, models.Property{
		Title: "Room", Price: 700, PropertyType: models.PropertyTypeRoom,
		Images: []string{"http://images.test/a.jpg", "http://images.test/b.jpg"},
	})

	images.On("Delete", mock.Anything, "http://images.test/a.jpg").Return(nil).Once()
	images.On("Delete", mock.Anything, "http://images.test/b.jpg").Return(errors.New("bucket unreachable")).Once()

	w := env.do(t, http.MethodDelete, "/api/properties/"+p.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	images.AssertExpectations(t)
}

func TestUploadImageRemovesObjectWhenListingUpdateFails(t *testing.T) {
	images := &MockImageStore{}
	env := setupTestEnv(t, images)
	owner, token := env.user(t, "owner@example.com", models.RoleOwner, true)
	p := env.listing(t, owner, models.Property{Title: "Room", Price: 700, PropertyType: models.PropertyTypeRoom})

	const stored = "http://images.test/orphan.jpg"
	images.On("Upload", mock.Anything, p.ID, mock.Anything, "photo.jpg", "image/jpeg", mock.Anything).
		Run(func(mock.Arguments) {
			// The listing disappears while the object is being stored
			require.NoError(t, env.db.DeleteProperty(p.ID))
		}).
		Return(stored, nil).Once()
	images.On("Delete", mock.Anything, stored).Return(nil).Once()

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "/api/properties/"+p.ID+"/images", token, "image/jpeg"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	images.AssertExpectations(t)
}

func TestUpdateProfile(t *testing.T) {
	env := setupTestEnv(t, nil)
	user, token := env.user(t, "rita@example.com", models.RoleRenter, true)
	env.user(t, "taken@example.com", models.RoleOwner, true)

	w := env.do(t, http.MethodPut, "/api/me", gin.H{"name": " Rita M. ", "email": "Rita.M@Example.com", "phone": "555-0101"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.User](t, w)
	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, "Rita M.", updated.Name)
	assert.Equal(t, "rita.m@example.com", updated.Email)
	assert.Equal(t, "555-0101", updated.Phone)
	assert.Equal(t, models.RoleRenter, updated.Role)

	w = env.do(t, http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rita.m@example.com", decode[models.User](t, w).Email)

	w = env.do(t, http.MethodPut, "/api/me", gin.H{"phone": "555-0202"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Rita M.", decode[models.User](t, w).Name)

	tests := []struct {
		name   string
		body   gin.H
		token  string
		status int
	}{
		{"email in use", gin.H{"email": "TAKEN@example.com"}, token, http.StatusConflict},
		{"invalid email", gin.H{"email": "not-an-email"}, token, http.StatusBadRequest},
		{"blank name", gin.H{"name": "  "}, token, http.StatusBadRequest},
		{"anonymous", gin.H{"name": "X"}, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/api/me", tt.body, tt.token)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w = env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "rita.m@example.com", "password": "password123"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
