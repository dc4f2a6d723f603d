package prompt

import (
	"fmt"
	"strings"

	"github.com/vnkhanh/podcast-studio/models"
)

const SystemTopics = `Bạn là một biên tập viên nội dung podcast giàu kinh nghiệm. Nhiệm vụ của bạn là gợi ý các chủ đề con phát triển tự nhiên từ chủ đề hiện tại.

## Yêu cầu
1. Mỗi chủ đề con gồm tiêu đề (tối đa 10 từ) và một câu tóm tắt (tối đa 25 từ)
2. Các chủ đề con có quan hệ tiếp nối hoặc liên quan, không nhảy cóc
3. Nối tiếp tự nhiên với nội dung đã kể, không lặp lại những gì đã nói
4. Luôn bám sát chủ đề gốc của podcast
5. Chỉ trả về JSON hợp lệ

## Định dạng trả về
Một mảng JSON, mỗi phần tử có title và summary:
[{"title": "Tiêu đề chủ đề con", "summary": "Tóm tắt ngắn"}]`

const systemContentMonologue = `Bạn là một người dẫn podcast giàu cảm xúc và hiểu biết, đang thu âm một tập podcast.

## Phong cách
- Nói tự nhiên như đang trò chuyện với bạn bè
- Kể rõ bối cảnh và diễn biến của vấn đề
- Có quan điểm riêng, không chép lại bách khoa
- Dùng câu chuyện và ví dụ để ý tưởng sinh động

## Yêu cầu
1. Chuyển tiếp tự nhiên từ đoạn trước
2. Không mở đầu bằng lời chào (trừ khi là đoạn đầu tiên)
3. Không lặp lại nội dung đã kể
4. Khoảng 800-1500 từ
5. Chỉ viết văn bản thuần, không dùng markdown`

const systemContentDialogue = `Bạn là biên kịch cho một podcast đối thoại giữa hai người dẫn: %s và %s.

## Phong cách
- Hai người dẫn trò chuyện tự nhiên, hỏi đáp và bổ sung cho nhau
- Kể rõ bối cảnh và diễn biến của vấn đề
- Có quan điểm, có cảm xúc, có ví dụ cụ thể

## Yêu cầu
1. Mỗi lượt nói bắt đầu bằng tên người nói và dấu hai chấm, ví dụ "%s: ..."
2. Chuyển tiếp tự nhiên từ đoạn trước, không lặp lại nội dung đã kể
3. Khoảng 800-1500 từ
4. Chỉ viết văn bản thuần, không dùng markdown`

const SystemEnding = `Bạn là người dẫn podcast, cần kết thúc tập hôm nay thật trọn vẹn.

## Yêu cầu
1. Tổng kết các ý chính đã thảo luận trong tập
2. Để lại cho người nghe một cảm xúc đọng lại
3. Giọng văn ấm áp, truyền cảm
4. Khoảng 300-500 từ
5. Chỉ viết văn bản thuần, không dùng markdown`

const (
	defaultHost   = "Người dẫn"
	defaultCoHost = "Khách mời"
)

// SystemContent chọn system prompt theo phong cách kịch bản
func SystemContent(style models.ScriptStyle, host, coHost string) string {
	if style != models.StyleDialogue {
		return systemContentMonologue
	}
	host = orDefault(host, defaultHost)
	coHost = orDefault(coHost, defaultCoHost)
	return fmt.Sprintf(systemContentDialogue, host, coHost, host)
}

func TopicPrompt(currentTopic string, count int, existingTitles []string) string {
	p := fmt.Sprintf("Chủ đề hiện tại là \"%s\". Hãy gợi ý %d chủ đề con phát triển tự nhiên.", currentTopic, count)
	if len(existingTitles) > 0 {
		p += "\nKhông trùng với các chủ đề đã có: " + strings.Join(existingTitles, "; ") + "."
	}
	return p + " Chỉ trả về mảng JSON, không thêm gì khác."
}

func ContentPrompt(currentTopic string) string {
	return fmt.Sprintf("Bây giờ hãy viết một đoạn kịch bản podcast hoàn chỉnh xoay quanh chủ đề \"%s\".", currentTopic)
}

func EndingPrompt() string {
	return "Dựa trên toàn bộ nội dung đã kể ở trên, hãy viết lời kết cho tập podcast. Tổng kết các ý chính và để lại ấn tượng sâu sắc cho người nghe."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
