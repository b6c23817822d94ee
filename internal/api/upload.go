package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dunamismax/pixelprep/internal/pipeline"
)

const (
	uploadField = "file"

	// Parts above this size are spooled to temp files by the multipart reader.
	multipartMemory = 8 << 20
)

// readUpload returns the bytes of the multipart "file" field. The body is
// capped at the server's upload limit and temp files are removed before
// returning.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadTooLargeError{limit: tooLarge.Limit}
		}
		return nil, pipeline.Invalid(uploadField, "expected a multipart/form-data upload")
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	f, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, pipeline.Invalid(uploadField, "no file uploaded")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadTooLargeError{limit: tooLarge.Limit}
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, pipeline.Invalid(uploadField, "uploaded file is empty")
	}
	return data, nil
}
