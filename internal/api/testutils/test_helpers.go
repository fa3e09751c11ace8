package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/land-rental-server/internal/api"
	"github.com/rongwang/land-rental-server/internal/audit"
	"github.com/rongwang/land-rental-server/internal/contractdoc"
	"github.com/rongwang/land-rental-server/internal/models"
	"github.com/rongwang/land-rental-server/internal/repository"
	"github.com/rongwang/land-rental-server/internal/service"
	"github.com/rongwang/land-rental-server/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Fixed actors used across the API tests
const (
	OwnerID   = "owner-1"
	TenantID  = "tenant-1"
	Tenant2ID = "tenant-2"
	AdminID   = "admin-1"
)

// Now is the frozen clock every test context runs on
var Now = time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  repository.Repository
	Service     *service.Service
	Audit       *audit.MemorySink
	StorageRoot string
	JWTSecret   []byte
	Tokens      map[string]string
}

// SetupTestContext wires the router on an in-memory store and a temp upload directory
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	secret := []byte("test-secret-key")
	root := t.TempDir()
	repo := repository.NewMemoryRepository()
	sink := &audit.MemorySink{}

	svc := service.New(repo, service.Options{
		Audit:    sink,
		Storage:  storage.NewLocalStorage(root),
		Renderer: contractdoc.NewPDFRenderer("http://localhost:8080"),
		Location: time.FixedZone("ICT", 7*60*60),
		Now:      func() time.Time { return Now },
	})

	handler := api.NewHandler(svc, api.Options{Locale: "en", Debug: true})

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.MaxMultipartMemory = 16 << 20

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", secret)
		c.Next()
	})

	handler.SetupRoutes(router)

	tokens := map[string]string{
		OwnerID:   signToken(t, secret, OwnerID, models.RoleUser),
		TenantID:  signToken(t, secret, TenantID, models.RoleUser),
		Tenant2ID: signToken(t, secret, Tenant2ID, models.RoleUser),
		AdminID:   signToken(t, secret, AdminID, models.RoleAdmin),
	}

	return &TestContext{
		Router:      router,
		Repository:  repo,
		Service:     svc,
		Audit:       sink,
		StorageRoot: root,
		JWTSecret:   secret,
		Tokens:      tokens,
	}
}

// Token returns a bearer token for userID, minting a plain user token for unknown ids
func (tc *TestContext) Token(t *testing.T, userID string) string {
	if token, ok := tc.Tokens[userID]; ok {
		return token
	}
	token := signToken(t, tc.JWTSecret, userID, models.RoleUser)
	tc.Tokens[userID] = token
	return token
}

// CreateListing inserts an available listing owned by OwnerID
func (tc *TestContext) CreateListing(t *testing.T, price int64) *models.Listing {
	t.Helper()
	listing, err := tc.Service.Listings.Create(context.Background(),
		models.Actor{ID: OwnerID, Role: models.RoleUser},
		models.CreateListingRequest{
			Title:          "Rice field",
			PricePerYear:   decimal.NewFromInt(price),
			DepositPercent: decimal.NewFromInt(10),
		})
	require.NoError(t, err)
	return listing
}

func signToken(t *testing.T, secret []byte, userID string, role models.Role) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString(secret)
	require.NoError(t, err, "Failed to generate JWT token")
	return tokenString
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// FormFile is one file part of a multipart request
type FormFile struct {
	Field    string
	Filename string
	Data     []byte
}

// PerformMultipart posts fields and files as multipart/form-data
func PerformMultipart(r http.Handler, path string, fields map[string]string, files []FormFile, headers map[string]string) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	for _, f := range files {
		part, _ := writer.CreateFormFile(f.Field, f.Filename)
		_, _ = part.Write(f.Data)
	}
	_ = writer.Close()

	req, _ := http.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// PNG returns a small valid PNG image
func PNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// DecodeResult unmarshals the response envelope, decoding Data into out when given
func DecodeResult(t *testing.T, w *httptest.ResponseRecorder, out interface{}) models.Result {
	t.Helper()
	var raw struct {
		models.Result
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return raw.Result
}
