/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-22 09:47:18
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 21:36:02
 * @FilePath: \go-rtlink\archive_repository.go
 * @Description: 丢弃消息归档仓库 - 队列淘汰/超限/过期消息的数据库留痕
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"encoding/json"
	"time"

	sqlbuilder "github.com/kamalyes/go-sqlbuilder/repository"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"gorm.io/gorm"
)

// DroppedMessageRecord 丢弃消息归档记录
type DroppedMessageRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID  string    `gorm:"column:message_id;type:varchar(64);uniqueIndex" json:"message_id"`
	EventType  string    `gorm:"column:event_type;type:varchar(128);index" json:"event_type"`
	Priority   string    `gorm:"column:priority;type:varchar(16)" json:"priority"`
	Reason     string    `gorm:"column:reason;type:varchar(32);index" json:"reason"`
	Payload    string    `gorm:"column:payload;type:text" json:"payload"`
	RetryCount int       `gorm:"column:retry_count" json:"retry_count"`
	QueuedAt   time.Time `gorm:"column:queued_at" json:"queued_at"`
	DroppedAt  time.Time `gorm:"column:dropped_at;index" json:"dropped_at"`
}

// TableName 指定表名
func (DroppedMessageRecord) TableName() string {
	return "rtlink_dropped_messages"
}

// DroppedMessageFilter 归档查询过滤器
type DroppedMessageFilter struct {
	// EventType 事件类型，为空不过滤
	EventType string
	// Reason 丢弃原因，为空不过滤
	Reason DropReason
	// Since 只取该时刻之后丢弃的记录
	Since time.Time
	// Limit 数量限制
	Limit int
}

// DroppedMessageRepository 丢弃消息归档仓库接口
type DroppedMessageRepository interface {
	// Archive 归档一条被丢弃的消息
	Archive(ctx context.Context, msg *QueuedMessage, reason DropReason) error

	// Query 查询归档记录（按丢弃时间倒序）
	Query(ctx context.Context, filter *DroppedMessageFilter) ([]*DroppedMessageRecord, error)

	// CountByReason 按丢弃原因统计
	CountByReason(ctx context.Context, reason DropReason) (int64, error)

	// CleanupOld 清理旧归档
	CleanupOld(ctx context.Context, before time.Time) (int64, error)
}

// GormDroppedMessageRepository GORM 丢弃消息归档仓库
type GormDroppedMessageRepository struct {
	db     *gorm.DB
	logger RTLogger
}

// NewGormDroppedMessageRepository 创建 GORM 归档仓库
func NewGormDroppedMessageRepository(db *gorm.DB, log RTLogger) DroppedMessageRepository {
	return &GormDroppedMessageRepository{db: db, logger: log}
}

// Archive 归档一条被丢弃的消息
// 载荷序列化失败不阻断归档，留空载荷入库
func (r *GormDroppedMessageRepository) Archive(ctx context.Context, msg *QueuedMessage, reason DropReason) error {
	payload := ""
	if raw, err := json.Marshal(msg.Payload); err == nil {
		payload = string(raw)
	} else {
		r.logger.WarnKV("归档载荷序列化失败", "message_id", msg.ID, "error", err.Error())
	}

	record := &DroppedMessageRecord{
		MessageID:  msg.ID,
		EventType:  msg.Type,
		Priority:   msg.Priority.String(),
		Reason:     string(reason),
		Payload:    payload,
		RetryCount: msg.RetryCount,
		QueuedAt:   msg.CreatedAt,
		DroppedAt:  time.Now(),
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// Query 查询归档记录（按丢弃时间倒序）
func (r *GormDroppedMessageRepository) Query(ctx context.Context, filter *DroppedMessageFilter) ([]*DroppedMessageRecord, error) {
	var records []*DroppedMessageRecord

	query := sqlbuilder.NewQuery().
		AddFilterIfNotEmpty("event_type", filter.EventType).
		AddFilterIfNotEmpty("reason", string(filter.Reason))

	if !filter.Since.IsZero() {
		query.AddFilter(sqlbuilder.NewGteFilter("dropped_at", filter.Since))
	}

	query.AddOrder("dropped_at", "DESC")
	query.Limit(mathx.IF(filter.Limit <= 0, 100, filter.Limit))

	gormDB := r.db.WithContext(ctx)
	gormDB = sqlbuilder.ApplyFilters(gormDB, query.Filters)
	gormDB = sqlbuilder.ApplyOrders(gormDB, query.Orders)
	if query.LimitValue != nil {
		gormDB = gormDB.Limit(*query.LimitValue)
	}

	err := gormDB.Find(&records).Error
	return records, err
}

// CountByReason 按丢弃原因统计
func (r *GormDroppedMessageRepository) CountByReason(ctx context.Context, reason DropReason) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DroppedMessageRecord{}).
		Where("reason = ?", string(reason)).
		Count(&count).Error
	return count, err
}

// CleanupOld 清理旧归档
func (r *GormDroppedMessageRepository) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("dropped_at < ?", before).
		Delete(&DroppedMessageRecord{})
	return result.RowsAffected, result.Error
}

// ArchivingDropHandler 把归档仓库适配成队列丢弃回调
// 归档失败只落日志，丢弃流程本身不可被归档故障阻断
func ArchivingDropHandler(repo DroppedMessageRepository, log RTLogger) DropHandler {
	return func(msg *QueuedMessage, reason DropReason) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := repo.Archive(ctx, msg, reason); err != nil {
			log.ErrorKV("丢弃消息归档失败",
				"message_id", msg.ID,
				"reason", string(reason),
				"error", err.Error(),
			)
		}
	}
}
