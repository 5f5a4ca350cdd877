package controller

import (
	"strconv"

	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// pathID 解析路径中的数值 ID，失败时已写出 400 响应
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// currentUser 取出已认证用户，缺失时已写出 401 响应
func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return user, true
}
