package store

import (
	"testing"

	"github.com/feldberlin/timething-web/pkg/models"
)

func TestMemoryStoreCreateGet(t *testing.T) {
	ms := NewMemoryStore()

	rec := &models.Transcription{
		ID: "abc",
		Upload: models.UploadInfo{
			Filename:    "file.name",
			ContentType: "audio/mp3",
			SizeBytes:   15,
		},
	}
	if err := ms.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := ms.Get("abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Upload.Filename != "file.name" || got.Upload.SizeBytes != 15 {
		t.Errorf("记录内容不一致: %+v", got.Upload)
	}

	// 返回的是拷贝，修改不应写回存储
	got.Upload.Filename = "changed"
	again, _ := ms.Get("abc")
	if again.Upload.Filename != "file.name" {
		t.Errorf("Get 返回了共享指针")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ms := NewMemoryStore()
	if _, err := ms.Get("nope"); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if err := ms.Update("nope", func(*models.Transcription) {}); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	ms := NewMemoryStore()
	if err := ms.Create(&models.Transcription{ID: "abc"}); err != nil {
		t.Fatal(err)
	}

	err := ms.Update("abc", func(rec *models.Transcription) {
		rec.Transcoded = true
		rec.Track = &models.Track{Duration: 10.5}
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := ms.Get("abc")
	if !got.Transcoded || got.Track == nil || got.Track.Duration != 10.5 {
		t.Errorf("更新未生效: %+v", got)
	}
}

func TestMemoryStoreList(t *testing.T) {
	ms := NewMemoryStore()
	ms.Create(&models.Transcription{ID: "a"})
	ms.Create(&models.Transcription{ID: "b"})
	ms.Create(&models.Transcription{ID: "c"})

	out, err := ms.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[0].ID != "c" || out[2].ID != "a" {
		t.Errorf("List 顺序错误: %+v", out)
	}
}
