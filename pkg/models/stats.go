package models

// Stats aggregates the operations journaled for one run
type Stats struct {
	TotalOps       int64
	OKOps          int64
	WarnOps        int64
	FailedOps      int64
	UploadedSize   int64
	DownloadedSize int64
}
