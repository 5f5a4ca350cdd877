package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frubric_backend/internal/model"
	"frubric_backend/internal/rubric"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT(t *testing.T) {
	tok, err := GenerateJWT(42, model.Grader, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Grader, claims.Role)

	_, err = ParseJWT(tok, "other")
	assert.Error(t, err)

	expired, err := GenerateJWT(42, model.Grader, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"校验错误", rubric.ValidationErrors{"criteria": "required"}, http.StatusBadRequest},
		{"无权限", errors.Wrap(ErrPermissionDenied, "fill"), http.StatusForbidden},
		{"定义不存在", errors.Wrapf(ErrDefinitionNotFound, "id %d", 3), http.StatusNotFound},
		{"会话过期", ErrSessionNotFound, http.StatusNotFound},
		{"分数越界", ErrLevelScoreOutOfRange, http.StatusBadRequest},
		{"分数格式", errors.Wrap(rubric.ErrInvalidScore, "level"), http.StatusBadRequest},
		{"备份损坏", errors.Wrap(ErrInvalidBackup, "parse"), http.StatusBadRequest},
		{"未知错误", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			HandleError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestFrscoreValidator(t *testing.T) {
	require.NoError(t, RegisterValidators())
	type req struct {
		Score *string `binding:"omitempty,frscore"`
	}
	good, bad := "1-10", "ten"
	gin.SetMode(gin.TestMode)

	for _, tt := range []struct {
		name  string
		score *string
		ok    bool
	}{
		{"区间", &good, true},
		{"未提供", nil, true},
		{"非法", &bad, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := bindingValidate(req{Score: tt.score})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func bindingValidate(v interface{}) error {
	return binding.Validator.ValidateStruct(v)
}
