package adapter

import (
	"github.com/kvallam/MedVaultAPI/internal/api"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/orchestrator"
	"github.com/kvallam/MedVaultAPI/internal/retrieval"
)

func ToUploadResponse(record recordModel.Record, scheduled bool) api.UploadResponse {
	return api.UploadResponse{
		RecordId:  record.Id,
		Status:    string(record.Status),
		Scheduled: scheduled,
	}
}

func ToSearchResponse(hits []retrieval.SearchHit) api.SearchResponse {
	out := make([]api.SearchHit, len(hits))
	for i, hit := range hits {
		out[i] = api.SearchHit{
			RecordId:    hit.RecordId,
			Title:       hit.Title,
			Status:      string(hit.Status),
			Snippet:     hit.Snippet,
			Score:       hit.Score,
			UpdatedTime: hit.UpdatedTime,
		}
	}
	return api.SearchResponse{Hits: out, Count: len(out)}
}

func ToAskResponse(answer retrieval.Answer) api.AskResponse {
	return api.AskResponse{
		RecordId:      answer.RecordId,
		Answer:        answer.Text,
		ContextChunks: answer.ContextChunks,
	}
}

func ToStatusResponse(stages []orchestrator.StageHealth, queueDepth int) api.StatusResponse {
	out := make([]api.StageStatus, len(stages))
	for i, stage := range stages {
		out[i] = api.StageStatus{
			Name:    stage.Name,
			Healthy: stage.Healthy,
			Detail:  stage.Detail,
		}
	}
	return api.StatusResponse{Stages: out, QueueDepth: queueDepth}
}

func ToError(code int, message string, traceId string) api.ErrorResponse {
	return api.ErrorResponse{
		Code:    code,
		Message: message,
		TraceId: traceId,
	}
}
