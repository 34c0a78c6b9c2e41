package domain

import "errors"

// ErrDownloadTooLarge indicates a fetch exceeded max_download_bytes.
var ErrDownloadTooLarge = errors.New("download too large")

// ErrExtractTooLarge indicates an archive's uncompressed size exceeded
// max_extracted_bytes.
var ErrExtractTooLarge = errors.New("extracted data too large")

// ErrNoProvider indicates no registered provider can handle a URL.
var ErrNoProvider = errors.New("no provider found for URL")

// ErrBatchWriterCrashed indicates the batch writer terminated before
// the controller finished publishing descriptors.
var ErrBatchWriterCrashed = errors.New("batch-writer crashed")

// ErrPipelineDisabled indicates an enqueue attempt while the pipeline
// is disabled by configuration.
var ErrPipelineDisabled = errors.New("pipeline is disabled")
