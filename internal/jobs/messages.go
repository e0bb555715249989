package jobs

import "github.com/tranduckhuy/eduva-backend-sub005/pkg/models"

func generateContentMessage(job *models.Job) models.GenerateContentMessage {
	return models.GenerateContentMessage{
		JobID:           job.ID,
		TaskType:        models.TaskGenerateContent,
		Topic:           job.Topic,
		SourceBlobNames: append([]string(nil), job.SourceBlobNames...),
	}
}

func createProductMessage(job *models.Job) models.CreateProductMessage {
	msg := models.CreateProductMessage{
		JobID:       job.ID,
		TaskType:    models.TaskCreateProduct,
		VoiceConfig: job.VoiceConfig,
	}
	if job.ProductType != nil {
		msg.JobType = *job.ProductType
	}
	if job.ContentBlobName != nil {
		msg.ContentBlobName = *job.ContentBlobName
	}
	if msg.VoiceConfig == nil {
		msg.VoiceConfig = models.JSON{}
	}
	return msg
}
