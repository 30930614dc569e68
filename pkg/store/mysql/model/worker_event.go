package model

import "time"

// WorkerEvent MySQL row archiving one worker lifecycle bus event
type WorkerEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   string    `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:idx_worker_event_id" json:"event_id"`
	ClusterID string    `gorm:"column:cluster_id;type:varchar(64);not null;index:idx_worker_cluster_time,priority:1" json:"cluster_id"`
	WorkerID  string    `gorm:"column:worker_id;type:varchar(64);index:idx_worker_id_time,priority:1" json:"worker_id"`
	Name      string    `gorm:"column:name;type:varchar(64);not null;index:idx_worker_event_name" json:"name"`
	Timestamp time.Time `gorm:"column:timestamp;type:datetime(3);not null;index:idx_worker_cluster_time,priority:2;index:idx_worker_id_time,priority:2" json:"timestamp"`
	Payload   JSONMap   `gorm:"column:payload;type:json" json:"payload,omitempty"`
}

func (WorkerEvent) TableName() string {
	return "worker_events"
}
