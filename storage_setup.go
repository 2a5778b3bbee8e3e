/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-18 10:12:45
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-25 16:40:18
 * @FilePath: \go-rtlink\storage_setup.go
 * @Description: 存储连接配置 - 统一管理 Redis 和 MySQL 连接
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package rtlink

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ============================================================================
// Redis 连接配置
// ============================================================================

// RedisOptions 队列持久化 Redis 连接参数
type RedisOptions struct {
	Addr     string // 地址 host:port
	Password string // 密码，可为空
	DB       int    // 库号
}

// OpenQueueRedis 创建队列持久化用 Redis 客户端并验证连通性
func OpenQueueRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		// 客户端侧持久化只有单键读写，小连接池足够
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// ============================================================================
// MySQL 连接配置
// ============================================================================

// OpenArchiveDB 打开丢弃消息归档库并自动迁移表结构
// dsn 格式: user:password@tcp(host:port)/database?charset=utf8mb4&parseTime=True
func OpenArchiveDB(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 归档写入是低频旁路流量，连接池保持小规模
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&DroppedMessageRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}
