package models

import "time"

// RequestLog is one API request as recorded by the request logging middleware.
// Documents expire through a TTL index on created_at.
type RequestLog struct {
	Base      `bson:",inline"`
	Method    string    `bson:"method" json:"method"`
	Path      string    `bson:"path" json:"path"`
	Route     string    `bson:"route,omitempty" json:"route,omitempty"`
	Status    int       `bson:"status" json:"status"`
	LatencyMs float64   `bson:"latency_ms" json:"latencyMs"`
	IP        string    `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string    `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	AdminID   string    `bson:"admin_id,omitempty" json:"adminId,omitempty"`
	Error     string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// RequestLogFilter narrows request log listings.
type RequestLogFilter struct {
	Method     string
	Status     int
	PathPrefix string
	PageRequest
}

// PathCount is a path with its number of hits.
type PathCount struct {
	Path  string `bson:"_id" json:"path"`
	Count int64  `bson:"count" json:"count"`
}

// RequestLogStats summarises the last 24 hours of requests.
type RequestLogStats struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"byStatus"`
	AvgLatencyMs float64          `json:"avgLatencyMs"`
	TopPaths     []PathCount      `json:"topPaths"`
	Since        time.Time        `json:"since"`
}
