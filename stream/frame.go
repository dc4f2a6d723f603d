// Package stream giải mã luồng SSE từ dịch vụ sinh nội dung và đổ từng đoạn
// văn bản vào đúng một node của cây.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Frame là một sự kiện trong luồng: {text} | {done:true} | {error}
type Frame struct {
	Text  string `json:"text,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

const dataPrefix = "data:"

// Decoder tách các dòng "data: {json}". Dòng chưa có ký tự xuống dòng được giữ
// lại trong buffer cho tới chunk sau.
type Decoder struct {
	buf       []byte
	Malformed int
}

// Push nạp một chunk và trả về các frame đã hoàn chỉnh theo đúng thứ tự
func (d *Decoder) Push(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)
	var out []Frame
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if f, ok := d.decodeLine(line); ok {
			out = append(out, f)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Flush giải mã phần còn lại khi luồng đóng (EOF coi như ký tự kết thúc dòng)
func (d *Decoder) Flush() []Frame {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if f, ok := d.decodeLine(line); ok {
		return []Frame{f}
	}
	return nil
}

func (d *Decoder) decodeLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return Frame{}, false
	}
	// comment ":" hoặc các trường SSE khác (event:, id:) không mang dữ liệu
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Frame{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == "[DONE]" {
		return Frame{Done: true}, true
	}

	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		d.Malformed++
		return Frame{}, false
	}
	if f.Text == "" && !f.Done && f.Error == "" {
		return Frame{}, false
	}
	return f, true
}

// WriteFrame ghi một frame theo định dạng SSE "data: {json}\n\n"
func WriteFrame(w io.Writer, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s %s\n\n", dataPrefix, b); err != nil {
		return err
	}
	return nil
}
