package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Content types served by the stream handler.
const (
	contentTypeMPEG = "audio/mpeg"
	contentTypeWAV  = "audio/wav"
)

const rangePrefix = "bytes="

// handleStream serves a cached audio file, honoring a single byte range.
// The file path is passed by the generate/status responses; how the file was
// produced is irrelevant here.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rawPath := r.URL.Query().Get("path")
	if rawPath == "" {
		http.Error(w, "path required", http.StatusBadRequest)

		return
	}

	filePath, err := filepath.Abs(rawPath)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)

		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)

		return
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			s.log.Warn("Failed to close streamed file '%s': %v", filePath, closeErr)
		}
	}()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)

		return
	}

	size := info.Size()
	contentType := contentTypeFor(filePath)
	rangeHeader := r.Header.Get("Range")

	if rangeHeader == "" {
		w.Header().Set(headerContentType, contentType)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)

		_, copyErr := io.Copy(w, file)
		if copyErr != nil {
			s.log.Warn("Stream of '%s' interrupted: %v", filePath, copyErr)
		}

		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)

		return
	}

	chunkSize := end - start + 1

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(chunkSize, 10))
	w.Header().Set(headerContentType, contentType)
	w.WriteHeader(http.StatusPartialContent)

	_, err = file.Seek(start, io.SeekStart)
	if err != nil {
		s.log.Error("Seek to %d in '%s' failed: %v", start, filePath, err)

		return
	}

	_, copyErr := io.CopyN(w, file, chunkSize)
	if copyErr != nil {
		s.log.Warn("Range stream of '%s' interrupted: %v", filePath, copyErr)
	}
}

// parseRange parses a single "bytes=start-end" header; end is optional and
// defaults to the last byte. Multi-range requests are not supported.
func parseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, rangePrefix)
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("malformed range start %q", header)
	}

	end := size - 1

	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range end %q", header)
		}
	}

	if end >= size {
		end = size - 1
	}

	if start > end || start >= size {
		return 0, 0, fmt.Errorf("range %q out of bounds for size %d", header, size)
	}

	return start, end, nil
}

// contentTypeFor infers the audio content type from the file extension.
func contentTypeFor(filePath string) string {
	if strings.EqualFold(filepath.Ext(filePath), ".mp3") {
		return contentTypeMPEG
	}

	return contentTypeWAV
}
