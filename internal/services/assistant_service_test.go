package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestPasswordHashing(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		hash, err := HashPassword("s3nh4-secreta")
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

		ok, err := VerifyPassword("s3nh4-secreta", hash)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password", func(t *testing.T) {
		hash, err := HashPassword("s3nh4-secreta")
		assert.NoError(t, err)

		ok, err := VerifyPassword("outra-senha", hash)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hashes are salted", func(t *testing.T) {
		first, _ := HashPassword("s3nh4-secreta")
		second, _ := HashPassword("s3nh4-secreta")
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed hash", func(t *testing.T) {
		_, err := VerifyPassword("qualquer", "not-a-hash")
		assert.Error(t, err)
	})
}

func TestAssistantService_Login(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 12)

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAssistantService(db, redisClient)

	hash, err := HashPassword("s3nh4-secreta")
	assert.NoError(t, err)
	now := time.Now()

	t.Run("valid credentials issue a token and store the session", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, username, phone, email, password_hash, created_at, updated_at FROM assistants WHERE username = ").
			WithArgs("ana").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "username", "phone", "email", "password_hash", "created_at", "updated_at"}).
				AddRow(1, "Ana Lima", "ana", "31998765432", "ana@clinica.com", hash, now, now))

		redisMock.Regexp().ExpectSet(`session:.+`, "ana", 12*time.Hour).SetVal("OK")

		body := `{"username":"ana","password":"s3nh4-secreta"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Login(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["token"])
		assert.NotContains(t, rec.Body.String(), hash)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, username, phone, email, password_hash, created_at, updated_at FROM assistants WHERE username = ").
			WithArgs("ana").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "username", "phone", "email", "password_hash", "created_at", "updated_at"}).
				AddRow(1, "Ana Lima", "ana", "31998765432", "ana@clinica.com", hash, now, now))

		body := `{"username":"ana","password":"senha-errada"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Login(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, username, phone, email, password_hash, created_at, updated_at FROM assistants WHERE username = ").
			WithArgs("ninguem").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "username", "phone", "email", "password_hash", "created_at", "updated_at"}))

		body := `{"username":"ninguem","password":"s3nh4-secreta"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Login(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing fields", func(t *testing.T) {
		body := `{"username":"ana"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		service.Login(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
