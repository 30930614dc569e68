package model

import "time"

// ScalingEvent MySQL row archiving one executed scaling action
type ScalingEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:idx_scaling_event_id" json:"event_id"`
	ClusterID   string    `gorm:"column:cluster_id;type:varchar(64);not null;index:idx_cluster_timestamp,priority:1" json:"cluster_id"`
	Timestamp   time.Time `gorm:"column:timestamp;type:datetime(3);not null;index:idx_cluster_timestamp,priority:2;index:idx_scaling_timestamp" json:"timestamp"`
	Action      string    `gorm:"column:action;type:varchar(32);not null;index:idx_scaling_action" json:"action"`
	FromWorkers int       `gorm:"column:from_workers;type:int;not null" json:"from_workers"`
	ToWorkers   int       `gorm:"column:to_workers;type:int;not null" json:"to_workers"`
	Reason      string    `gorm:"column:reason;type:text" json:"reason"`
	Confidence  float64   `gorm:"column:confidence;type:double;not null;default:0" json:"confidence"`
	Success     bool      `gorm:"column:success;not null;default:false" json:"success"`
}

func (ScalingEvent) TableName() string {
	return "scaling_events"
}
