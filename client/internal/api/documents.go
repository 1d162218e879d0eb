package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// ListDocuments returns the reference documents uploaded by the bearer.
func ListDocuments(ctx context.Context, hc types.HTTPClient, baseURL, token string) ([]types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, hc, http.MethodGet, baseURL+"/api/documents", token, "list documents", nil)
	if err != nil {
		return nil, err
	}
	var docs []types.Document
	if err := decode(body, &docs, "list documents"); err != nil {
		return nil, err
	}
	return docs, nil
}

// UploadDocument sends one file as multipart field "file".
func UploadDocument(ctx context.Context, hc types.HTTPClient, baseURL, token, name string, r io.Reader) (*types.UploadResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateToken(token); err != nil {
		return nil, err
	}
	if err := types.ValidateIDPresent(name, "file name"); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(types.WithBearer(ctx, token), http.MethodPost, baseURL+"/api/documents/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	body, err := send(hc, req, "upload document")
	if err != nil {
		return nil, err
	}
	var ur types.UploadResponse
	if err := decode(body, &ur, "upload document"); err != nil {
		return nil, err
	}
	return &ur, nil
}
