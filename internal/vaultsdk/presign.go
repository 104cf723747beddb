package vaultsdk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/openmined/syftvault/internal/upload"
)

const v1UploadMultipart = "/api/v1/vault/upload/multipart"

// PresignUploadRequest asks the coordinator for one presigned target per
// part plus the finalize target.
type PresignUploadRequest struct {
	FileHash  string `json:"fileHash"`
	Size      int64  `json:"size"`
	PartSize  int64  `json:"partSize"`
	PartCount int    `json:"partCount"`
}

// PresignUploadResponse is the coordinator's answer. PartURLs is ordered,
// index 0 is part 1.
type PresignUploadResponse struct {
	ObjectKey   string   `json:"objectKey"`
	CompleteURL string   `json:"completeUrl"`
	PartURLs    []string `json:"partUrls"`
}

// PresignUpload requests presigned part targets. Implements
// upload.Presigner. Failures are wrapped in PresignError: no session has
// been created yet, so the caller may retry cleanly.
func (c *Client) PresignUpload(ctx context.Context, fileHash string, size int64, partSize int64, partCount int) (*upload.PresignedUpload, error) {
	var result *PresignUploadResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", uuid.NewString()).
		SetBody(&PresignUploadRequest{
			FileHash:  fileHash,
			Size:      size,
			PartSize:  partSize,
			PartCount: partCount,
		}).
		SetSuccessResult(&result).
		Post(v1UploadMultipart)

	if err := handleAPIError(resp, err, "presign multipart upload"); err != nil {
		return nil, &PresignError{Err: err}
	}
	if result == nil || result.ObjectKey == "" || result.CompleteURL == "" || len(result.PartURLs) == 0 {
		return nil, &PresignError{Err: fmt.Errorf("invalid presign response")}
	}

	return &upload.PresignedUpload{
		ObjectKey:   result.ObjectKey,
		CompleteURL: result.CompleteURL,
		PartURLs:    result.PartURLs,
	}, nil
}
