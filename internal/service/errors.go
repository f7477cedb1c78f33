package service

import (
	"errors"
	"fmt"
)

var (
	ErrNoFile      = errors.New("no file uploaded")
	ErrInvalidFile = errors.New("invalid file")
	ErrNotFound    = errors.New("image not found")

	ErrUploadFailed = errors.New("upload failed")
	ErrDeleteFailed = errors.New("delete failed")
	ErrFetchFailed  = errors.New("fetch failed")
)

var (
	ErrFileTooLarge    = fmt.Errorf("%w: file is too large", ErrInvalidFile)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrInvalidFile)
)
