// 手动触发学习成果同步与成绩册分类初始化
//
// 两项任务都已集成到主应用的后台定时任务中（间隔见 tasks 配置）。
// 此脚本用于首次部署或批量恢复备份后立即补齐数据。
//
// 用法: go run scripts/sync_outcomes.go

package main

import (
	"context"
	"log"
	"os"

	"frubric_backend/internal/config"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/service"
	"frubric_backend/pkg/database"
	"frubric_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	// 只用到 server 与 database 两节，字段名均为单词，yaml 默认映射即可
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	if cfg.Grading.DefaultPolicy == "" {
		cfg.Grading.DefaultPolicy = "locked-zero"
	}

	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg.Database, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	settings := service.NewGradingSettings(cfg.Grading)
	areaRepo := repository.NewAreaRepository(db)
	definitions := service.NewDefinitionService(db, nil, areaRepo,
		repository.NewDefinitionRepository(db),
		repository.NewCriterionRepository(db),
		service.NewDefinitionReconciler(), settings)

	outcomes := service.NewOutcomeService(repository.NewOutcomeRepository(db), repository.NewInstanceRepository(db), definitions)
	gradebook := service.NewGradebookService(areaRepo, repository.NewGradeCategoryRepository(db))

	ctx := context.Background()
	log.Println("同步学习成果成绩...")
	n, err := outcomes.SyncOutcomes(ctx)
	if err != nil {
		log.Fatalf("同步失败: %v", err)
	}
	log.Printf("写入 %d 条学习成果成绩", n)

	created, err := gradebook.BootstrapCategories(ctx)
	if err != nil {
		log.Fatalf("成绩册分类初始化失败: %v", err)
	}
	log.Printf("新建 %d 个成绩册分类", created)
	log.Println("完成！")
}
