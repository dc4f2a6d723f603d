package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

const (
	DefaultVoice  = "vi-VN-Chirp3-HD-Puck"
	ttsChunkBytes = 4500 // dưới ngưỡng 5000 bytes của Cloud TTS
	ttsLanguage   = "vi-VN"
)

// Narrator đọc kịch bản thành audio MP3 bằng Google Cloud Text-to-Speech
type Narrator struct {
	client *texttospeech.Client
}

// NewNarrator tạo client từ file credentials (GOOGLE_CREDENTIALS_JSON là đường dẫn file)
func NewNarrator(ctx context.Context, credPath string) (*Narrator, error) {
	if credPath == "" {
		return nil, errors.New("GOOGLE_CREDENTIALS_JSON chưa được cấu hình")
	}
	client, err := texttospeech.NewClient(ctx, option.WithCredentialsFile(credPath))
	if err != nil {
		return nil, fmt.Errorf("không thể tạo TTS client: %w", err)
	}
	return &Narrator{client: client}, nil
}

func (n *Narrator) Close() error {
	return n.client.Close()
}

// Synthesize chuyển văn bản thành audio MP3, chia nhỏ theo giới hạn byte
func (n *Narrator) Synthesize(ctx context.Context, text, voice string, rate float64) ([]byte, error) {
	if len(text) == 0 {
		return nil, errors.New("văn bản rỗng")
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if rate <= 0 {
		rate = 1.0
	}

	chunks := splitTextToChunksByByte(text, ttsChunkBytes)
	var allAudio []byte
	for idx, chunk := range chunks {
		log.Printf("tts: đang đọc đoạn %d/%d (%d bytes)", idx+1, len(chunks), len(chunk))

		resp, err := n.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: ttsLanguage,
				Name:         voice,
			},
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding: texttospeechpb.AudioEncoding_MP3,
				SpeakingRate:  rate,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("tts đoạn %d: %w", idx+1, err)
		}
		allAudio = append(allAudio, resp.AudioContent...)
	}
	return allAudio, nil
}

// splitTextToChunksByByte chia text theo giới hạn byte, ưu tiên cắt ở dấu câu
// và không cắt giữa một ký tự UTF-8
func splitTextToChunksByByte(text string, maxBytes int) []string {
	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxBytes {
			chunks = append(chunks, remaining)
			break
		}

		cutPos := maxBytes
		for i := maxBytes; i > 0; i-- {
			c := remaining[i-1]
			if c == '.' || c == '!' || c == '?' || c == '\n' {
				cutPos = i
				break
			}
		}
		// lùi về đầu ký tự UTF-8 để chunk không vượt maxBytes
		for cutPos > 0 && cutPos < len(remaining) && (remaining[cutPos]&0xC0) == 0x80 {
			cutPos--
		}
		if cutPos == 0 {
			cutPos = maxBytes
		}

		chunks = append(chunks, remaining[:cutPos])
		remaining = remaining[cutPos:]
	}
	return chunks
}
