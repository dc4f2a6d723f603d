package utils

import (
	"log"
	"time"
)

// StartCleanupJob chạy job ngay một lần rồi lặp lại mỗi `every` cho tới khi stop đóng
func StartCleanupJob(name string, every time.Duration, stop <-chan struct{}, job func()) {
	log.Printf("Đang chạy %s lần đầu...", name)
	job()

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				job()
			}
		}
	}()
	log.Printf("Đã bật %s (chạy mỗi %s)", name, every)
}
