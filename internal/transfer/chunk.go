package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
)

// ServerError is a response the client cannot accept: a failure code or a
// chunk that contradicts the transfer so far.
type ServerError struct {
	Code   string
	Reason string
}

func (e *ServerError) Error() string {
	if e.Reason == "" {
		return "server error: " + e.Code
	}
	return fmt.Sprintf("server error: %s: %s", e.Code, e.Reason)
}

func serverError(code, format string, args ...any) *ServerError {
	return &ServerError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Chunk is one piece of a download.
type Chunk struct {
	TotalSize int64
	ChunkSize int64
	Data      []byte
}

// ChunkValues are the response values carrying c.
func ChunkValues(c Chunk) []any {
	return []any{c.TotalSize, c.ChunkSize, base64.StdEncoding.EncodeToString(c.Data)}
}

// ParseChunk reads the values produced by ChunkValues.
func ParseChunk(values []any) (Chunk, error) {
	a := Args(values)
	total, err := a.Int(0)
	if err != nil {
		return Chunk{}, err
	}
	size, err := a.Int(1)
	if err != nil {
		return Chunk{}, err
	}
	text, err := a.String(2)
	if err != nil {
		return Chunk{}, err
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: chunk encoding", ErrInvalidData)
	}
	return Chunk{TotalSize: total, ChunkSize: size, Data: data}, nil
}

// SliceChunk cuts the chunk starting at offset out of data, at most
// maxChunk bytes long. The code is OK for the final chunk and CHUNK_OK
// otherwise; an offset past the end is INVALID_DATA.
func SliceChunk(data []byte, offset int64, maxChunk int) (string, Chunk) {
	total := int64(len(data))
	if offset < 0 || offset > total {
		return InvalidData, Chunk{}
	}
	n := min(int64(CapChunkSize(maxChunk)), total-offset)
	c := Chunk{TotalSize: total, ChunkSize: n, Data: data[offset : offset+n]}
	if offset+n == total {
		return OK, c
	}
	return ChunkOK, c
}

// FetchFunc requests the chunk at offset.
type FetchFunc func(ctx context.Context, offset int64, maxChunk int) (Response, error)

// Download fetches chunks until the final one and writes them to w. Every
// response is checked in this order: the code is OK or CHUNK_OK; the total
// is non-negative and equal to the first chunk's; the chunk size is
// non-negative and within the remaining bytes; the payload length equals
// the chunk size; an OK chunk completes the total and a CHUNK_OK chunk is
// non-empty and leaves bytes remaining. Any violation aborts with a
// *ServerError. ctx is checked between chunks.
func Download(ctx context.Context, fetch FetchFunc, maxChunk int, w io.Writer) (int64, error) {
	maxChunk = CapChunkSize(maxChunk)
	var offset int64
	total := int64(-1)

	for {
		if err := ctx.Err(); err != nil {
			return offset, err
		}
		resp, err := fetch(ctx, offset, maxChunk)
		if err != nil {
			return offset, err
		}
		if resp.Code != OK && resp.Code != ChunkOK {
			return offset, &ServerError{Code: resp.Code}
		}
		c, err := ParseChunk(resp.Values)
		if err != nil {
			return offset, serverError(InvalidData, "%v", err)
		}

		if c.TotalSize < 0 {
			return offset, serverError(InvalidData, "negative total size %d", c.TotalSize)
		}
		if total < 0 {
			total = c.TotalSize
		} else if c.TotalSize != total {
			return offset, serverError(InvalidData, "total size changed from %d to %d", total, c.TotalSize)
		}
		if c.ChunkSize < 0 || c.ChunkSize > total-offset {
			return offset, serverError(InvalidData, "chunk size %d with %d bytes remaining", c.ChunkSize, total-offset)
		}
		if int64(len(c.Data)) != c.ChunkSize {
			return offset, serverError(InvalidData, "chunk declares %d bytes, carries %d", c.ChunkSize, len(c.Data))
		}
		if resp.Code == OK && offset+c.ChunkSize != total {
			return offset, serverError(Incomplete, "final chunk ends at %d of %d", offset+c.ChunkSize, total)
		}
		if resp.Code == ChunkOK && (c.ChunkSize == 0 || offset+c.ChunkSize >= total) {
			return offset, serverError(InvalidData, "chunk at %d of %d does not advance", offset, total)
		}

		if _, err := w.Write(c.Data); err != nil {
			return offset, err
		}
		offset += c.ChunkSize
		if resp.Code == OK {
			return offset, nil
		}
	}
}

// PutFunc sends the chunk of data starting at offset.
type PutFunc func(ctx context.Context, offset int64, chunk []byte, total int64) (Response, error)

// Upload sends data in chunks of at most maxChunk bytes. It returns the
// code of the first response that is not CHUNK_OK. progress, when set, is
// called after each accepted chunk. ctx is checked between chunks; chunks
// already accepted stay on the server.
func Upload(ctx context.Context, data []byte, maxChunk int, put PutFunc, progress func(sent, total int64)) (string, error) {
	maxChunk = CapChunkSize(maxChunk)
	total := int64(len(data))
	var offset int64

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n := min(int64(maxChunk), total-offset)
		resp, err := put(ctx, offset, data[offset:offset+n], total)
		if err != nil {
			return "", err
		}
		if resp.Code != ChunkOK {
			if resp.Code == OK && progress != nil {
				progress(total, total)
			}
			return resp.Code, nil
		}
		offset += n
		if offset >= total {
			return "", serverError(InvalidData, "server wants more than %d bytes", total)
		}
		if progress != nil {
			progress(offset, total)
		}
	}
}
