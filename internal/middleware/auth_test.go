package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frubric_backend/internal/config"
	"frubric_backend/internal/model"
	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthAndRoleMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "mw-secret"}}

	router := gin.New()
	router.GET("/grader", AuthMiddleware(cfg), RoleMiddleware(model.Grader), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", util.GetUserFromContext(c).UserID)
	})

	sign := func(role model.UserRole, secret string) string {
		tok, err := util.GenerateJWT(5, role, secret, time.Hour)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"无令牌", "", http.StatusUnauthorized},
		{"签名不符", sign(model.Grader, "other"), http.StatusUnauthorized},
		{"角色不符", sign(model.Student, "mw-secret"), http.StatusForbidden},
		{"评分人", sign(model.Grader, "mw-secret"), http.StatusOK},
		{"管理员", sign(model.Admin, "mw-secret"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/grader", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "5", w.Body.String())
			}
		})
	}
}
