package dto

import "github.com/Y04ash/Projexx/internal/models"

// UploadBatchResponse is returned by the multi-file upload endpoint. The
// field is named images for compatibility with the submission dialog.
type UploadBatchResponse struct {
	Images []AttachmentResponse `json:"images"`
}

// UploadFileStatus reports the terminal state of one file in the batch.
type UploadFileStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// NewUploadBatchResponse converts completed attachment descriptors.
func NewUploadBatchResponse(attachments []models.Attachment) UploadBatchResponse {
	images := make([]AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		images = append(images, AttachmentResponse{
			BlobID:       a.BlobID,
			URL:          a.URL,
			SecureURL:    a.SecureURL,
			OriginalName: a.OriginalName,
			SizeBytes:    a.SizeBytes,
			Format:       a.Format,
			UploadedAt:   a.UploadedAt,
		})
	}

	return UploadBatchResponse{Images: images}
}
