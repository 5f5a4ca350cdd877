package repository

import (
	"database/sql"
	"errors"
	"testing"

	"frubric_backend/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMockDB(t *testing.T, mock func(t *testing.T) *sql.DB) *gorm.DB {
	db, err := gorm.Open(gormMysql.New(gormMysql.Config{
		Conn: mock(t),
		// 如果为 false ，则GORM在初始化时，会先调用 show version
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db
}

func TestInstanceRepository_MarkNeedUpdate(t *testing.T) {
	testCases := []struct {
		name     string
		mock     func(t *testing.T) *sql.DB
		wantRows int64
		wantErr  error
	}{
		{
			name: "标记成功",
			mock: func(t *testing.T) *sql.DB {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectExec("UPDATE `frubric_instances` SET .*").
					WillReturnResult(sqlmock.NewResult(0, 3))
				return mockDB
			},
			wantRows: 3,
		},
		{
			name: "数据库错误",
			mock: func(t *testing.T) *sql.DB {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectExec("UPDATE `frubric_instances` SET .*").
					WillReturnError(errors.New("数据库错误"))
				return mockDB
			},
			wantErr: errors.New("数据库错误"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewInstanceRepository(openMockDB(t, tc.mock))
			rows, err := repo.MarkNeedUpdate(7)
			assert.Equal(t, tc.wantErr, err)
			assert.Equal(t, tc.wantRows, rows)
		})
	}
}

func TestCriterionRepository_DeleteCriterion(t *testing.T) {
	testCases := []struct {
		name    string
		mock    func(t *testing.T) *sql.DB
		wantErr error
	}{
		{
			name: "级联删除",
			mock: func(t *testing.T) *sql.DB {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectExec("DELETE FROM `frubric_descript` WHERE criterion_id = \\?").
					WillReturnResult(sqlmock.NewResult(0, 4))
				mock.ExpectExec("DELETE FROM `frubric_levels` WHERE criterion_id = \\?").
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectExec("DELETE FROM `frubric_criteria` WHERE .*").
					WillReturnResult(sqlmock.NewResult(0, 1))
				return mockDB
			},
		},
		{
			name: "删除描述项失败时停止",
			mock: func(t *testing.T) *sql.DB {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectExec("DELETE FROM `frubric_descript` .*").
					WillReturnError(errors.New("lock wait timeout"))
				return mockDB
			},
			wantErr: errors.New("lock wait timeout"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewCriterionRepository(openMockDB(t, tc.mock))
			err := repo.DeleteCriterion(11)
			assert.Equal(t, tc.wantErr, err)
		})
	}
}

func TestDefinitionRepository_FindByID(t *testing.T) {
	testCases := []struct {
		name     string
		mock     func(t *testing.T) *sql.DB
		wantName string
		wantErr  error
	}{
		{
			name: "查找成功",
			mock: func(t *testing.T) *sql.DB {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				rows := sqlmock.NewRows([]string{"id", "area_id", "name", "status"}).
					AddRow(3, 1, "Essay rubric", model.DefinitionReady)
				mock.ExpectQuery("SELECT \\* FROM `frubric_definitions` WHERE .*").WillReturnRows(rows)
				return mockDB
			},
			wantName: "Essay rubric",
		},
		{
			name: "不存在",
			mock: func(t *testing.T) *sql.DB {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				rows := sqlmock.NewRows([]string{"id", "area_id", "name", "status"})
				mock.ExpectQuery("SELECT \\* FROM `frubric_definitions` WHERE .*").WillReturnRows(rows)
				return mockDB
			},
			wantErr: gorm.ErrRecordNotFound,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewDefinitionRepository(openMockDB(t, tc.mock))
			def, err := repo.FindByID(3)
			assert.Equal(t, tc.wantErr, err)
			assert.Equal(t, tc.wantName, def.Name)
		})
	}
}

func TestCriterionRepository_ListLevelsEmpty(t *testing.T) {
	// 空 ID 列表不访问数据库
	repo := NewCriterionRepository(openMockDB(t, func(t *testing.T) *sql.DB {
		mockDB, _, err := sqlmock.New()
		require.NoError(t, err)
		return mockDB
	}))
	levels, err := repo.ListLevels(nil)
	require.NoError(t, err)
	assert.Empty(t, levels)
}
