// Package server provides the HTTP server for stillcast.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "github.com/maauso/stillcast/internal/media"

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// AudioBase64 is the base64-encoded source audio.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// AudioName is the original file name of the audio, used for its extension.
	AudioName string `json:"audio_name" validate:"required,max=255"`
	// ImageBase64 is the base64-encoded source image.
	ImageBase64 string `json:"image_base64" validate:"required,base64"`
	// ImageName is the original file name of the image, used for its extension.
	ImageName string `json:"image_name" validate:"required,max=255"`
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	Error      string `json:"error,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	// Layout is where the image sits in the frame, when it could be probed.
	Layout        *media.Layout `json:"layout,omitempty"`
	AudioDuration float64       `json:"audio_duration,omitempty"`
	// ArtifactURL serves the finished video until it is revoked or expires.
	ArtifactURL string `json:"artifact_url,omitempty"`
	// VideoURL is the S3 URL of the output video (if push_to_s3=true and completed).
	VideoURL  string `json:"video_url,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Engine is the lifecycle state of the encoding engine.
	Engine string `json:"engine"`
}
