package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Loại tài liệu được phép import làm chủ đề gốc
type InputType string

const (
	InputText InputType = "text"
	InputTXT  InputType = "txt"
	InputDOCX InputType = "docx"
	InputPDF  InputType = "pdf"
)

var ErrUnsupportedInput = errors.New("loại input không được hỗ trợ")

// DetectInputType đoán loại tài liệu từ phần mở rộng của tên file
func DetectInputType(filename string) (InputType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return InputTXT, nil
	case ".docx":
		return InputDOCX, nil
	case ".pdf":
		return InputPDF, nil
	}
	return "", ErrUnsupportedInput
}

// ExtractFile đọc toàn bộ file upload và trích văn bản thuần
func ExtractFile(fh *multipart.FileHeader) (string, error) {
	typ, err := DetectInputType(fh.Filename)
	if err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("không mở được file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("lỗi đọc file: %w", err)
	}
	return ExtractText(typ, data)
}

func ExtractText(typ InputType, data []byte) (string, error) {
	switch typ {
	case InputText, InputTXT:
		return string(data), nil
	case InputPDF:
		return extractPDF(data)
	case InputDOCX:
		return extractDOCX(data)
	}
	return "", ErrUnsupportedInput
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("không thể tạo reader PDF: %w", err)
	}

	var text bytes.Buffer
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
	}
	return text.String(), nil
}

// .docx là file zip, văn bản nằm trong các thẻ <w:t> của word/document.xml
func extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("file docx không hợp lệ: %w", err)
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("không tìm thấy word/document.xml")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var buf bytes.Buffer
	decoder := xml.NewDecoder(rc)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "t" {
			var text string
			if err := decoder.DecodeElement(&text, &se); err == nil {
				buf.WriteString(text + " ")
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
