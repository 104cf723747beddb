package upload

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
)

// CompletionAssembler builds and submits the finalize request once every
// part's identifier is recorded. It performs no retries; a rejected finalize
// leaves the session in the uploaded state for a later attempt.
type CompletionAssembler struct {
	client *http.Client
}

func NewCompletionAssembler(client *http.Client) *CompletionAssembler {
	if client == nil {
		client = http.DefaultClient
	}
	return &CompletionAssembler{client: client}
}

type completedPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type completeMultipartUpload struct {
	XMLName xml.Name        `xml:"CompleteMultipartUpload"`
	Parts   []completedPart `xml:"Part"`
}

// buildBody serializes the part map as the finalize document. The protocol
// requires strictly ascending, contiguous, 1-based part numbers; a sparse
// map means the session record is corrupt and completion must not proceed.
func buildBody(partETags map[int]string) ([]byte, error) {
	parts := make([]completedPart, 0, len(partETags))
	for index, etag := range partETags {
		parts = append(parts, completedPart{
			PartNumber: index + 1,
			ETag:       etag,
		})
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})

	for i, part := range parts {
		if part.PartNumber != i+1 || part.ETag == "" {
			return nil, ErrSessionCorrupted
		}
	}

	return xml.Marshal(&completeMultipartUpload{Parts: parts})
}

// Complete POSTs the ordered part list to completeURL. Errors surface
// unchanged to the caller; the session status is untouched here.
func (c *CompletionAssembler) Complete(ctx context.Context, completeURL string, partETags map[int]string) error {
	body, err := buildBody(partETags)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completeURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &CompletionError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
