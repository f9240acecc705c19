// Package decode wraps the supported container decoders behind one
// streaming Reader interface producing interleaved float32 PCM blocks.
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/audiograph/pkg/pcm"
)

var (
	ErrUnsupportedContainer = errors.New("unsupported container format")
	ErrInvalidFile          = errors.New("invalid or corrupt audio file")
)

// Reader streams decoded PCM. Read returns up to frames frames per call
// and io.EOF once the stream is exhausted; a short final block is
// returned alongside a nil error, with io.EOF following on the next
// call.
type Reader interface {
	Format() pcm.Format
	Read(frames int) (*pcm.Buffer, error)
}

// File bundles a Reader with the file it reads from.
type File struct {
	Reader
	f *os.File
}

func (f *File) Close() error { return f.f.Close() }

// Open opens path and picks a decoder from the file extension.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r Reader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		r, err = NewWAV(f)
	case ".mp3":
		r, err = NewMP3(f)
	case ".ogg", ".oga":
		r, err = NewOgg(f)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedContainer, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Reader: r, f: f}, nil
}

// Drain reads the stream to completion in fixed-size blocks, passing
// each block and its running presentation offset to fn.
func Drain(r Reader, frames int, fn func(buf *pcm.Buffer) error) error {
	for {
		buf, err := r.Read(frames)
		if buf != nil && buf.Frames() > 0 {
			if ferr := fn(buf); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
