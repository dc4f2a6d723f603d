package services

import (
	"bytes"
	"errors"
	"io"

	tcmp3 "github.com/tcolgate/mp3"
)

// MP3Duration tính thời lượng audio MP3 (giây) bằng cách duyệt từng frame
func MP3Duration(r io.Reader) (float64, error) {
	var (
		dur     float64
		dec     = tcmp3.NewDecoder(r)
		frame   tcmp3.Frame
		skipped int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		dur += frame.Duration().Seconds()
	}
	return dur, nil
}

func MP3DurationFromBytes(audio []byte) (float64, error) {
	return MP3Duration(bytes.NewReader(audio))
}
