// Package storage wires the blob storage used for source files and export archives
package storage

import (
	"log"

	"github.com/UnendingLoop/WatermarkStudio/internal/storage/memstorage"
)

func NewBlobStorage(quotaMB int) *memstorage.MemBlobStorage {
	quota := int64(quotaMB) << 20
	if quota <= 0 {
		log.Println("Blob storage quota is not set. Storage is unlimited...")
	} else {
		log.Printf("Blob storage quota: %d MB", quotaMB)
	}
	return memstorage.NewMemBlobStorage(quota)
}
