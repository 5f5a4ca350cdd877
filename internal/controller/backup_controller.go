package controller

import (
	"fmt"
	"io"
	"net/http"

	"frubric_backend/internal/service"
	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 上传备份文件的大小上限
const maxBackupUpload = 16 << 20

type BackupController struct {
	BackupService *service.BackupService
}

func NewBackupController(backupService *service.BackupService) *BackupController {
	return &BackupController{BackupService: backupService}
}

// @Summary 备份评分定义
// @Description 导出 XML 并写入配置的存储（local/minio/oss）
// @Tags 备份恢复
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "定义ID"
// @Param body body service.BackupRequest false "是否包含评分数据"
// @Success 201 {object} util.Response
// @Router /api/teacher/definitions/{id}/backup [post]
func (c *BackupController) Backup(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.BackupRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	res, err := c.BackupService.Backup(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// @Summary 下载评分定义 XML
// @Tags 备份恢复
// @Produce xml
// @Security BearerAuth
// @Param id path int true "定义ID"
// @Param grades query bool false "是否包含评分数据"
// @Success 200 {file} file
// @Router /api/teacher/definitions/{id}/export [get]
func (c *BackupController) Export(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	raw, _, err := c.BackupService.Export(id, ctx.Query("grades") == "true" || ctx.Query("grades") == "1")
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=frubric-%d.xml", id))
	ctx.Data(http.StatusOK, "application/xml; charset=utf-8", raw)
}

// @Summary 从存储恢复评分定义
// @Description 恢复为区域下的新定义，所有 ID 重新分配
// @Tags 备份恢复
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "区域ID"
// @Param body body service.RestoreRequest true "备份 key"
// @Success 201 {object} util.Response
// @Router /api/teacher/areas/{id}/restore [post]
func (c *BackupController) Restore(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	areaID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.RestoreRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := c.BackupService.Restore(ctx.Request.Context(), areaID, user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// @Summary 上传 XML 恢复评分定义
// @Tags 备份恢复
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "区域ID"
// @Param file formData file true "备份文件"
// @Success 201 {object} util.Response
// @Router /api/teacher/areas/{id}/import [post]
func (c *BackupController) Import(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	areaID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "missing file")
		return
	}
	if fh.Size > maxBackupUpload {
		util.BadRequest(ctx, "backup file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxBackupUpload))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	res, err := c.BackupService.Import(ctx.Request.Context(), areaID, user.UserID, raw)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}
