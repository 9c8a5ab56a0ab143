package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"
)

// Static errors for output verification.
var (
	// ErrNotFastStart is returned when the movie header does not precede the media data.
	ErrNotFastStart = errors.New("mp4 is not fast-start: moov does not precede mdat")
	// ErrMissingTrack is returned when the output lacks a video or an audio track.
	ErrMissingTrack = errors.New("mp4 is missing a track")
	// ErrInvalidMP4 is returned when the top-level box structure cannot be read.
	ErrInvalidMP4 = errors.New("invalid mp4")
)

// VerifyFastStart checks that data is an MP4 whose moov box comes before its
// mdat box and that the movie has at least one video and one audio track.
func VerifyFastStart(data []byte) error {
	r := bytes.NewReader(data)
	size := uint64(len(data))

	var (
		pos  uint64
		moov *mp4.MoovBox
		mdat bool
	)
	for pos < size {
		if _, err := r.Seek(int64(pos), io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek to %d: %w", ErrInvalidMP4, pos, err)
		}
		hdr, err := mp4.DecodeHeader(r)
		if err != nil {
			return fmt.Errorf("%w: header at offset %d: %w", ErrInvalidMP4, pos, err)
		}
		boxSize := hdr.Size
		if boxSize == 0 {
			boxSize = size - pos
		}
		if boxSize < uint64(hdr.Hdrlen) || boxSize > size-pos {
			return fmt.Errorf("%w: %s box at offset %d overruns the file", ErrInvalidMP4, hdr.Name, pos)
		}

		switch hdr.Name {
		case "moov":
			if mdat {
				return ErrNotFastStart
			}
			if _, err := r.Seek(int64(pos), io.SeekStart); err != nil {
				return fmt.Errorf("%w: seek to %d: %w", ErrInvalidMP4, pos, err)
			}
			box, err := mp4.DecodeBox(pos, r)
			if err != nil {
				return fmt.Errorf("%w: moov: %w", ErrInvalidMP4, err)
			}
			m, ok := box.(*mp4.MoovBox)
			if !ok {
				return fmt.Errorf("%w: unexpected moov type %T", ErrInvalidMP4, box)
			}
			moov = m
		case "mdat":
			if moov == nil {
				return ErrNotFastStart
			}
			mdat = true
		}
		pos += boxSize
	}

	if moov == nil {
		return fmt.Errorf("%w: no moov box", ErrInvalidMP4)
	}

	var video, audio bool
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
			continue
		}
		switch trak.Mdia.Hdlr.HandlerType {
		case "vide":
			video = true
		case "soun":
			audio = true
		}
	}
	if !video {
		return fmt.Errorf("%w: no video track", ErrMissingTrack)
	}
	if !audio {
		return fmt.Errorf("%w: no audio track", ErrMissingTrack)
	}
	return nil
}
