package models

import (
	"time"
)

// JobStatus 定义了任务的几种可能状态
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status is a final one. A job never leaves a
// terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Job 代表一个持久化的 agent 任务记录
type Job struct {
	ID          string     `bson:"_id" json:"id"`                                  // 任务唯一ID (UUID string)
	Prompt      string     `bson:"prompt" json:"prompt"`                           // 原始输入文本
	Status      JobStatus  `bson:"status" json:"status"`                           // 任务当前状态
	Result      *JobResult `bson:"result,omitempty" json:"result,omitempty"`       // 终态下的输出结果
	TraceID     string     `bson:"trace_id" json:"traceId"`                        // 贯穿日志和事件的追踪ID
	SubmittedAt time.Time  `bson:"submitted_at" json:"submittedAt"`                // 任务提交时间
	CompletedAt time.Time  `bson:"completed_at,omitempty" json:"completedAt,omitempty"` // 任务完成时间
}

// JobResult 是任务的结构化输出。成功时携带模型文本（或解析后的 plan），
// 失败时携带结构化错误信息；解析失败时保留原始文本以便排查。
type JobResult struct {
	Response string                 `bson:"response,omitempty" json:"response,omitempty"`
	Plan     map[string]interface{} `bson:"plan,omitempty" json:"plan,omitempty"`
	Safety   interface{}            `bson:"safety,omitempty" json:"safety,omitempty"`
	Error    *ErrorInfo             `bson:"error,omitempty" json:"error,omitempty"`
	Raw      string                 `bson:"raw,omitempty" json:"raw,omitempty"`
}
