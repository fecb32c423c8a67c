package actions

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const kindUpload Kind = "upload"

// UploadResult reports the counts of one CSV ingestion.
type UploadResult struct {
	Processed int `json:"processed"`
	Generated int `json:"generated_ids"`
	Errors    int `json:"errors"`
}

// Message is the operator summary. Zero counts for generated ids and errors
// are left out.
func (r UploadResult) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Uploaded %d customers", r.Processed)
	if r.Generated > 0 {
		fmt.Fprintf(&b, ", %d IDs generated", r.Generated)
	}
	if r.Errors > 0 {
		fmt.Fprintf(&b, ", %d errors", r.Errors)
	}
	return b.String()
}

// Uploader sends one CSV file to the backend.
type Uploader struct {
	backend Backend
}

func NewUploader(backend Backend) *Uploader {
	return &Uploader{backend: backend}
}

// Upload transmits exactly one file. The reader is closed after every
// attempt, successful or not, so the caller can pick the same file again.
func (u *Uploader) Upload(ctx context.Context, filename string, file io.ReadCloser) (UploadResult, error) {
	if file == nil {
		return UploadResult{}, &ValidationError{Message: "Please choose a CSV file to upload"}
	}
	defer file.Close()

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return UploadResult{}, &ValidationError{Message: "Please choose a CSV file to upload"}
	}

	res, err := u.backend.UploadCSV(ctx, name, file)
	if err != nil {
		return UploadResult{}, &ActionError{Kind: kindUpload, Err: err}
	}
	return UploadResult{
		Processed: res.Processed,
		Generated: len(res.GeneratedIDs),
		Errors:    len(res.Errors),
	}, nil
}
