package transfer

import (
	"fmt"
)

// Partial is an upload in progress on the server.
type Partial struct {
	TotalSize int64
	Data      []byte
}

// Complete reports whether every byte has arrived.
func (p *Partial) Complete() bool {
	return int64(len(p.Data)) == p.TotalSize
}

// AppendChunk validates an uploaded chunk against the partial upload p
// (nil when none is in progress) and returns the updated upload. A chunk at
// offset 0 starts over. The declared chunk size must match the payload,
// the offset must continue the bytes received so far, the total must not
// change and the bytes must not exceed it. Failures wrap ErrInvalidData
// and leave p untouched.
func AppendChunk(p *Partial, totalSize, offset, chunkSize int64, chunk []byte, maxTotal int64) (*Partial, error) {
	if totalSize <= 0 || (maxTotal > 0 && totalSize > maxTotal) {
		return nil, fmt.Errorf("%w: total size %d", ErrInvalidData, totalSize)
	}
	if chunkSize != int64(len(chunk)) {
		return nil, fmt.Errorf("%w: chunk declares %d bytes, carries %d", ErrInvalidData, chunkSize, len(chunk))
	}
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidData, chunkSize)
	}

	if offset == 0 {
		p = &Partial{TotalSize: totalSize}
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no upload in progress for offset %d", ErrInvalidData, offset)
	}
	if p.TotalSize != totalSize {
		return nil, fmt.Errorf("%w: total size changed from %d to %d", ErrInvalidData, p.TotalSize, totalSize)
	}
	if offset != int64(len(p.Data)) {
		return nil, fmt.Errorf("%w: offset %d, expected %d", ErrInvalidData, offset, len(p.Data))
	}
	if offset+chunkSize > totalSize {
		return nil, fmt.Errorf("%w: %d bytes exceed total %d", ErrInvalidData, offset+chunkSize, totalSize)
	}

	data := make([]byte, 0, offset+chunkSize)
	data = append(data, p.Data...)
	data = append(data, chunk...)
	return &Partial{TotalSize: totalSize, Data: data}, nil
}
