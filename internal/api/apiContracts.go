package api

import "time"

type UploadResponse struct {
	RecordId  string `json:"record_id" example:"5f8d7a62-1c0e-4b8f-9f2f-1a2b3c4d5e6f"`
	Status    string `json:"status" example:"uploaded"`
	Scheduled bool   `json:"processing_scheduled" example:"true"`
}

type SearchHit struct {
	RecordId    string    `json:"record_id"`
	Title       string    `json:"title"`
	Status      string    `json:"status" example:"processed"`
	Snippet     string    `json:"snippet"`
	Score       float32   `json:"score" example:"0.82"`
	UpdatedTime time.Time `json:"updated_time"`
}

type SearchResponse struct {
	Hits  []SearchHit `json:"hits"`
	Count int         `json:"count" example:"3"`
}

type AskResponse struct {
	RecordId      string `json:"record_id"`
	Answer        string `json:"answer"`
	ContextChunks int    `json:"context_chunks" example:"4"`
}

type RecordURLResponse struct {
	RecordId  string `json:"record_id"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in_seconds" example:"3600"`
}

type ReprocessResponse struct {
	RecordId string `json:"record_id"`
	Status   string `json:"status" example:"scheduled"`
}

type StageStatus struct {
	Name    string `json:"name" example:"insight"`
	Healthy bool   `json:"healthy" example:"true"`
	Detail  string `json:"detail,omitempty"`
}

type StatusResponse struct {
	Stages     []StageStatus `json:"stages"`
	QueueDepth int           `json:"queue_depth" example:"0"`
}

type ErrorResponse struct {
	Code    int    `json:"code" example:"403"`
	Message string `json:"message" example:"access denied"`
	TraceId string `json:"trace_id,omitempty"`
}

// requests---------------------

type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k,omitempty" example:"5"`
}

type AskRequest struct {
	RecordId string `json:"record_id" validate:"required"`
	Question string `json:"question" validate:"required"`
}
